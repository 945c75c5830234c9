// Package logging configures slog for coderag. Records are JSON, written to a
// size-rotated file under ~/.coderag/logs and optionally mirrored to stderr.
// The MCP server never mirrors to stderr because stdio carries the protocol.
package logging
