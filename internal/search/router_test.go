package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouter_Route(t *testing.T) {
	r := NewRouter(testConfig())

	tests := []struct {
		name     string
		question string
		fallback string
		want     string
	}{
		{"explicit prefix", "faxbot: how is inbound handled", "", "faxbot"},
		{"prefix is case-insensitive", "FAXBOT: status", "", "faxbot"},
		{"keyword vote", "where is the inbound fax stored", "", "faxbot"},
		{"punctuated keyword", "why does t.38 negotiation fail", "", "faxbot"},
		{"multi-word keyword", "who renders the login page", "", "webapp"},
		{"tie falls through to fallback", "react fax", "faxbot", "faxbot"},
		{"tie without fallback uses default", "react fax", "", "webapp"},
		{"unknown fallback uses default", "nothing relevant", "nope", "webapp"},
		{"unknown prefix is ignored", "billing: how are invoices sent", "", "webapp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Route(tt.question, tt.fallback))
		})
	}
}

func TestRouter_Strip(t *testing.T) {
	r := NewRouter(testConfig())

	assert.Equal(t, "how is inbound handled", r.Strip("faxbot: how is inbound handled"))
	assert.Equal(t, "billing: invoices", r.Strip("billing: invoices"))
	assert.Equal(t, "plain question", r.Strip("plain question"))
}

func TestRouter_Known(t *testing.T) {
	r := NewRouter(testConfig())

	assert.True(t, r.Known("faxbot"))
	assert.True(t, r.Known("WebApp"))
	assert.False(t, r.Known("billing"))
	assert.False(t, r.Known(""))
}
