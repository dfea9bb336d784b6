package constants

import "time"

const (
	// SupportedFileTypes for upload; everything else is rejected up front.
	FileTypePDF  = "pdf"
	FileTypeDOCX = "docx"

	// MinSectionChars is the minimum section text length that earns its own
	// embedding. Shorter fragments produce unstable vectors and waste calls.
	MinSectionChars = 50

	// SummaryPrefixChars is the fixed-length prefix of the full text used
	// for the summary embedding (cheap keyword-similarity proxy).
	SummaryPrefixChars = 200

	// MaxSuggestionsPerRun bounds one LLM invocation's output.
	MaxSuggestionsPerRun = 7

	// EmbeddingCacheTTL is deliberately long: text->vector is deterministic
	// for a fixed model version, so entries only rot when the model changes.
	EmbeddingCacheTTL = 30 * 24 * time.Hour

	// UploadDedupTTL bounds how long raw-file MD5s are remembered.
	UploadDedupTTL = 365 * 24 * time.Hour
)

// Processing status values persisted on document rows.
const (
	DocStatusUploaded  = "UPLOADED"
	DocStatusExtracted = "EXTRACTED"
	DocStatusFailed    = "EXTRACTION_FAILED"
)
