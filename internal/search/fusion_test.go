package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuse_ScenarioA(t *testing.T) {
	// Given: overlapping dense and sparse rankings
	dense := []string{"s1", "s2", "s3"}
	sparse := []string{"s2", "s4", "s1"}

	// When: fusing to two results with c=60
	fused := Fuse([][]string{dense, sparse}, 2, 60)

	// Then: s2 (1/62 + 1/61) outranks s1 (1/61 + 1/63)
	assert.Equal(t, []string{"s2", "s1"}, []string{fused[0].ID, fused[1].ID})
	assert.InDelta(t, 1.0/62+1.0/61, fused[0].Score, 1e-12)
	assert.InDelta(t, 1.0/61+1.0/63, fused[1].Score, 1e-12)
}

func TestFuse_EmptyDenseKeepsSparseOrder(t *testing.T) {
	sparse := []string{"a", "b", "c", "d"}

	got := FuseIDs([][]string{nil, sparse}, 3, 60)

	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestFuse_OutputIsBoundedSubsetOfUnion(t *testing.T) {
	tests := []struct {
		name  string
		lists [][]string
		k     int
	}{
		{"disjoint", [][]string{{"a", "b"}, {"c", "d"}}, 3},
		{"identical", [][]string{{"a", "b"}, {"a", "b"}}, 5},
		{"k larger than union", [][]string{{"a"}, {"b"}}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			union := map[string]bool{}
			for _, l := range tt.lists {
				for _, id := range l {
					union[id] = true
				}
			}
			got := FuseIDs(tt.lists, tt.k, 60)
			assert.LessOrEqual(t, len(got), tt.k)
			for _, id := range got {
				assert.True(t, union[id], id)
			}
		})
	}
}

func TestFuse_BothListsRankOneBeatsSingleList(t *testing.T) {
	got := FuseIDs([][]string{{"x", "y"}, {"x", "z"}}, 0, 60)
	assert.Equal(t, "x", got[0])
}

func TestFuse_TiesKeepFirstAppearance(t *testing.T) {
	// a and c both sit at rank 1 of one list only
	got := FuseIDs([][]string{{"a"}, {"c"}}, 0, 60)
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestFuse_DefaultConstant(t *testing.T) {
	fused := Fuse([][]string{{"a"}}, 1, 0)
	assert.InDelta(t, 1.0/61, fused[0].Score, 1e-12)
}
