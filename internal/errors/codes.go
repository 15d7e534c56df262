// Package errors provides structured error handling for filesense.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, extraction)
//   - 3XX: Network / external-service errors
//   - 4XX: Validation and protocol errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and extraction errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates embedding or vector-store service errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input and protocol validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound     = "ERR_201_FILE_NOT_FOUND"
	ErrCodeExtractionFailed = "ERR_202_EXTRACTION_FAILED"
	ErrCodeFileTooLarge     = "ERR_203_FILE_TOO_LARGE"
	ErrCodeWatchSetupFailed = "ERR_204_WATCH_SETUP_FAILED"
	ErrCodeCatalogCorrupt   = "ERR_205_CATALOG_CORRUPT"

	// Network / external-service errors (300-399)
	ErrCodeEmbeddingTimeout       = "ERR_301_EMBEDDING_TIMEOUT"
	ErrCodeEmbeddingModel         = "ERR_302_EMBEDDING_MODEL"
	ErrCodeVectorStoreUnavailable = "ERR_303_VECTOR_STORE_UNAVAILABLE"

	// Validation and protocol errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidPath       = "ERR_402_INVALID_PATH"
	ErrCodeMalformedMessage  = "ERR_403_MALFORMED_MESSAGE"
	ErrCodeDimensionMismatch = "ERR_404_DIMENSION_MISMATCH"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeIndexFailed  = "ERR_502_INDEX_FAILED"
	ErrCodeSearchFailed = "ERR_503_SEARCH_FAILED"
	ErrCodeTransport    = "ERR_504_TRANSPORT"
)

// categoryFromCode extracts category from error code.
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
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from the code.
// Only startup-level failures are fatal; everything else degrades.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeCatalogCorrupt:
		return SeverityFatal
	case ErrCodeWatchSetupFailed, ErrCodeFileTooLarge:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code may
// succeed on retry. Transient embedding and vector-store failures qualify.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbeddingTimeout, ErrCodeVectorStoreUnavailable:
		return true
	default:
		return false
	}
}
