// Package errors provides structured error values for coderag.
//
// Codes follow ERR_XXX_DESCRIPTION where the hundreds digit selects the
// category:
//   - 1XX: configuration
//   - 2XX: index and snippet IO
//   - 3XX: backend calls (vector service, reranker, generator)
//   - 4XX: caller input
//   - 5XX: internal
package errors

// Category classifies an error by where it originated.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryBackend    Category = "BACKEND"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity tells callers whether a turn can continue.
type Severity string

const (
	// SeverityFatal aborts the command.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails the current operation.
	SeverityError Severity = "ERROR"
	// SeverityDegraded means a channel or backend was skipped and the turn continues.
	SeverityDegraded Severity = "DEGRADED"
)

const (
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeUnknownRepo    = "ERR_103_UNKNOWN_REPO"

	ErrCodeSnippetsMissing = "ERR_201_SNIPPETS_MISSING"
	ErrCodeIndexMissing    = "ERR_202_INDEX_MISSING"
	ErrCodeIndexCorrupt    = "ERR_203_INDEX_CORRUPT"
	ErrCodeIndexLocked     = "ERR_204_INDEX_LOCKED"

	ErrCodeDenseUnavailable     = "ERR_301_DENSE_UNAVAILABLE"
	ErrCodeSparseUnavailable    = "ERR_302_SPARSE_UNAVAILABLE"
	ErrCodeRerankUnavailable    = "ERR_303_RERANK_UNAVAILABLE"
	ErrCodeGeneratorUnavailable = "ERR_304_GENERATOR_UNAVAILABLE"
	ErrCodeEmbedderUnavailable  = "ERR_305_EMBEDDER_UNAVAILABLE"
	ErrCodeBackendTimeout       = "ERR_306_BACKEND_TIMEOUT"

	ErrCodeQueryEmpty   = "ERR_401_QUERY_EMPTY"
	ErrCodeInvalidInput = "ERR_402_INVALID_INPUT"

	ErrCodeInternal = "ERR_501_INTERNAL"
)

func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryBackend
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeIndexCorrupt, ErrCodeConfigInvalid:
		return SeverityFatal
	}
	if categoryFromCode(code) == CategoryBackend {
		return SeverityDegraded
	}
	return SeverityError
}

// Backend failures are transient by nature; everything else is not.
func isRetryableCode(code string) bool {
	return categoryFromCode(code) == CategoryBackend
}
