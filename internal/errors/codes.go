// Package errors provides structured error handling for spiralmem.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: validation errors (bad input, unsupported URL, missing file)
//   - 2XX: lookup errors (not found, already exists)
//   - 3XX: media tool errors (ffmpeg/ffprobe subprocess failures)
//   - 4XX: transcription errors
//   - 5XX: platform errors (URL parse, download, quota)
//   - 6XX: store errors (persistence)
//   - 7XX: timeout and cancellation
//   - 9XX: system errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryNotFound indicates entity lookup misses.
	CategoryNotFound Category = "NOTFOUND"
	// CategoryExists indicates uniqueness violations.
	CategoryExists Category = "EXISTS"
	// CategoryMedia indicates media subprocess failures.
	CategoryMedia Category = "MEDIA"
	// CategoryTranscribe indicates speech-recognition failures.
	CategoryTranscribe Category = "TRANSCRIBE"
	// CategoryPlatform indicates platform URL/download errors.
	CategoryPlatform Category = "PLATFORM"
	// CategoryStore indicates persistence failures.
	CategoryStore Category = "STORE"
	// CategoryTimeout indicates step or batch-item timeouts.
	CategoryTimeout Category = "TIMEOUT"
	// CategoryCancelled indicates cancelled jobs.
	CategoryCancelled Category = "CANCELLED"
	// CategorySystem indicates unexpected internal errors.
	CategorySystem Category = "SYSTEM"
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
	// Validation errors (100-199)
	ErrCodeInvalidInput    = "ERR_101_INVALID_INPUT"
	ErrCodeFileNotFound    = "ERR_102_FILE_NOT_FOUND"
	ErrCodeUnsupportedFile = "ERR_103_UNSUPPORTED_FILE"
	ErrCodeInvalidURL      = "ERR_104_INVALID_URL"
	ErrCodeInvalidSpace    = "ERR_105_INVALID_SPACE"
	ErrCodeConfigInvalid   = "ERR_106_CONFIG_INVALID"

	// Lookup errors (200-299)
	ErrCodeNotFound      = "ERR_201_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_202_ALREADY_EXISTS"

	// Media tool errors (300-399)
	ErrCodeMediaTool     = "ERR_301_MEDIA_TOOL"
	ErrCodeMediaTimeout  = "ERR_302_MEDIA_TIMEOUT"
	ErrCodeNoAudioStream = "ERR_303_NO_AUDIO_STREAM"
	ErrCodeProbeFailed   = "ERR_304_PROBE_FAILED"

	// Transcription errors (400-499)
	ErrCodeTranscription      = "ERR_401_TRANSCRIPTION"
	ErrCodeTranscriberMissing = "ERR_402_TRANSCRIBER_MISSING"

	// Platform errors (500-599)
	ErrCodeUnsupportedPlatform = "ERR_501_UNSUPPORTED_PLATFORM"
	ErrCodeDownloadFailed      = "ERR_502_DOWNLOAD_FAILED"
	ErrCodeQuotaExceeded       = "ERR_503_QUOTA_EXCEEDED"

	// Store errors (600-699)
	ErrCodeStore     = "ERR_601_STORE"
	ErrCodeMigration = "ERR_602_MIGRATION"

	// Timeout/cancel errors (700-799)
	ErrCodeTimeout   = "ERR_701_TIMEOUT"
	ErrCodeCancelled = "ERR_702_CANCELLED"

	// System errors (900-999)
	ErrCodeInternal        = "ERR_901_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_902_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_903_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategorySystem
	}
	switch code[4] {
	case '1':
		return CategoryValidation
	case '2':
		if code == ErrCodeAlreadyExists {
			return CategoryExists
		}
		return CategoryNotFound
	case '3':
		return CategoryMedia
	case '4':
		return CategoryTranscribe
	case '5':
		return CategoryPlatform
	case '6':
		return CategoryStore
	case '7':
		if code == ErrCodeCancelled {
			return CategoryCancelled
		}
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// severityFromCode derives severity from error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeTranscription, ErrCodeTranscriberMissing, ErrCodeEmbeddingFailed:
		// Pipeline treats these as warnings: the job continues without
		// transcript or embeddings.
		return SeverityWarning
	case ErrCodeMigration, ErrCodeInternal:
		return SeverityFatal
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code may be retried.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeMediaTimeout, ErrCodeTimeout, ErrCodeDownloadFailed, ErrCodeEmbeddingFailed:
		return true
	default:
		return false
	}
}
