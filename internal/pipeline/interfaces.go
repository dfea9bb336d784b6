package pipeline

import (
	"context"
	"time"

	"resume-match-go/internal/storage"
	"resume-match-go/internal/storage/models"
	"resume-match-go/internal/types"
)

// Collaborator interfaces are kept small so each can be faked in tests
// without the real backends.

// Extractor turns raw bytes into a ParsedDocument.
type Extractor interface {
	Extract(ctx context.Context, raw []byte, fileType string, kind types.DocumentKind) (*types.ParsedDocument, error)
}

// EmbeddingGenerator produces the EmbeddingSet for one document.
type EmbeddingGenerator interface {
	GenerateEmbeddings(ctx context.Context, doc *types.ParsedDocument) (*types.EmbeddingSet, error)
}

// SimilarityScorer compares two embedding sets.
type SimilarityScorer interface {
	Compare(resume, job *types.EmbeddingSet) *types.SimilarityResult
}

// SuggestionGenerator asks the LLM for improvement suggestions.
type SuggestionGenerator interface {
	Generate(ctx context.Context, resumeText, jobText string, scores *types.SimilarityResult) ([]types.Suggestion, error)
}

// MatchStore is the relational persistence the orchestrator needs.
type MatchStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	GetDocumentByMD5(ctx context.Context, userID, contentMD5 string) (*models.Document, error)
	UpdateDocumentExtraction(ctx context.Context, id string, updates map[string]interface{}) error
	DeleteDocument(ctx context.Context, id string) error

	CreateMatchRecord(ctx context.Context, record *models.MatchRecord) error
	GetMatchByPair(ctx context.Context, resumeID, jobID string) (*models.MatchRecord, error)
	GetMatchByID(ctx context.Context, id string) (*models.MatchRecord, error)
	UpdateMatchState(ctx context.Context, id string, state types.PipelineState, errorMessage *string) error
	SaveMatchScores(ctx context.Context, id string, result *types.MatchResult) error
	AppendSuggestions(ctx context.Context, matchID string, suggestions []types.Suggestion) error
	UpdateSuggestionStatus(ctx context.Context, suggestionID string, status types.SuggestionStatus) error
}

// ObjectStore reads and writes document content in object storage.
type ObjectStore interface {
	UploadOriginal(ctx context.Context, documentID, fileType string, data []byte) (string, error)
	GetOriginal(ctx context.Context, objectName string) ([]byte, error)
	UploadParsedText(ctx context.Context, documentID, text string) (string, error)
	GetParsedText(ctx context.Context, objectName string) (string, error)
	DeleteOriginal(ctx context.Context, objectName string) error
}

// TaskQueue publishes background suggestion tasks.
type TaskQueue interface {
	PublishSuggestionTask(ctx context.Context, task *storage.SuggestionTaskMessage) error
}

// DedupStore covers the Redis-backed cross-instance coordination: upload
// dedup, pair locks and per-user rate windows. Optional; without it
// coordination is best-effort in-process.
type DedupStore interface {
	CheckAndRecordUpload(ctx context.Context, contentMD5 string) (bool, error)
	AcquireMatchLock(ctx context.Context, resumeID, jobID string, ttl time.Duration) (bool, error)
	ReleaseMatchLock(ctx context.Context, resumeID, jobID string) error
	AllowUserOperation(ctx context.Context, userID string, limit int, window time.Duration) (bool, error)
}

// VectorIndex keeps job vectors searchable for best-match ranking.
type VectorIndex interface {
	UpsertJobVector(ctx context.Context, jobID string, vector []float64, payload map[string]interface{}) error
	SearchSimilarJobs(ctx context.Context, queryVector []float64, limit int) ([]storage.JobSearchResult, error)
	DeleteJobVector(ctx context.Context, jobID string) error
}
