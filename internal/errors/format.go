package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// FormatForCLI renders err for terminal output. A CodeError anywhere in
// the chain adds its hint and code.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}
	var ce *CodeError
	if !errors.As(err, &ce) {
		return fmt.Sprintf("Error: %s\n", err)
	}

	headline := ce.Message
	if err != error(ce) {
		headline = err.Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", headline)
	if ce.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", ce.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", ce.Code)
	return sb.String()
}

// LogAttrs returns slog attributes describing err.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}
	var ce *CodeError
	if !errors.As(err, &ce) {
		return []any{slog.String("error", err.Error())}
	}
	attrs := []any{
		slog.String("error_code", ce.Code),
		slog.String("error", ce.Message),
		slog.String("category", string(ce.Category)),
		slog.String("severity", string(ce.Severity)),
	}
	if ce.Cause != nil {
		attrs = append(attrs, slog.String("cause", ce.Cause.Error()))
	}
	for k, v := range ce.Details {
		attrs = append(attrs, slog.String("detail_"+k, v))
	}
	return attrs
}
