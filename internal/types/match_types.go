package types

import "time"

// DocumentKind distinguishes the two kinds of documents the pipeline ingests.
type DocumentKind string

const (
	KindResume         DocumentKind = "resume"
	KindJobDescription DocumentKind = "job_description"
)

// Valid reports whether k is one of the known document kinds.
func (k DocumentKind) Valid() bool {
	return k == KindResume || k == KindJobDescription
}

// Resume section names produced by the extractor.
const (
	SectionExperience = "experience"
	SectionEducation  = "education"
	SectionSkills     = "skills"
	SectionSummary    = "summary"
)

// Job-description section names produced by the extractor.
const (
	SectionRequirements     = "requirements"
	SectionResponsibilities = "responsibilities"
	SectionBenefits         = "benefits"
	SectionCompanyInfo      = "company_info"
)

// Contact field names used in ParsedDocument.ContactInfo.
const (
	ContactEmail    = "email"
	ContactPhone    = "phone"
	ContactLinkedIn = "linkedin"
)

// ParsedDocument is the immutable result of extracting one uploaded file.
// Re-processing a file creates a new ParsedDocument; instances are never
// mutated after creation.
type ParsedDocument struct {
	TextContent  string                 `json:"text_content"`
	Sections     map[string]string      `json:"sections"`
	ContactInfo  map[string]string      `json:"contact_info,omitempty"`
	QualityScore float64                `json:"quality_score"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Embedding labels inside an EmbeddingSet.
const (
	EmbeddingFullText      = "full_text"
	EmbeddingSummary       = "summary"
	EmbeddingSectionPrefix = "section_"
)

// SectionEmbeddingKey returns the embedding label for a named section.
func SectionEmbeddingKey(section string) string {
	return EmbeddingSectionPrefix + section
}

// EmbeddingSet holds the vectors derived from one ParsedDocument. Keys are
// "full_text", "summary" and "section_<name>". A section without enough text
// simply has no entry; consumers treat absence as "no data", not an error.
type EmbeddingSet struct {
	Vectors      map[string][]float64 `json:"vectors"`
	ModelVersion string               `json:"model_version"`
}

// Get returns the vector stored under label and whether it is present.
func (e *EmbeddingSet) Get(label string) ([]float64, bool) {
	if e == nil {
		return nil, false
	}
	vector, ok := e.Vectors[label]
	return vector, ok
}

// SimilarityResult is the outcome of comparing one resume's EmbeddingSet
// against one job description's EmbeddingSet. All scores live in [0,1];
// ConfidenceScore is floored at 0.1.
type SimilarityResult struct {
	OverallSimilarity   float64            `json:"overall_similarity"`
	SectionSimilarities map[string]float64 `json:"section_similarities"`
	KeywordSimilarity   float64            `json:"keyword_similarity"`
	ConfidenceScore     float64            `json:"confidence_score"`
}

// PipelineState tracks the progress of one match run. FAILED is reachable
// from every non-terminal state.
type PipelineState string

const (
	StatePending    PipelineState = "PENDING"
	StateExtracting PipelineState = "EXTRACTING"
	StateEmbedding  PipelineState = "EMBEDDING"
	StateScoring    PipelineState = "SCORING"
	StateSuggesting PipelineState = "SUGGESTING"
	StateComplete   PipelineState = "COMPLETE"
	StateFailed     PipelineState = "FAILED"
)

// Terminal reports whether the state permits no further transitions.
func (s PipelineState) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// SuggestionType categorizes a suggestion.
type SuggestionType string

const (
	SuggestionKeyword    SuggestionType = "keyword"
	SuggestionExperience SuggestionType = "experience"
	SuggestionSkills     SuggestionType = "skills"
	SuggestionFormat     SuggestionType = "format"
	SuggestionContent    SuggestionType = "content"
)

// SuggestionStatus is mutated only through explicit user-triggered
// transitions (pending -> implemented/rejected); suggestions are never
// auto-deleted.
type SuggestionStatus string

const (
	SuggestionPending     SuggestionStatus = "pending"
	SuggestionImplemented SuggestionStatus = "implemented"
	SuggestionRejected    SuggestionStatus = "rejected"
)

// Suggestion is one actionable recommendation produced by the LLM.
type Suggestion struct {
	ID             string           `json:"id,omitempty"`
	Type           SuggestionType   `json:"type"`
	Priority       int              `json:"priority"`      // 1 = highest, 5 = lowest
	ImpactScore    float64          `json:"impact_score"`  // estimated score-point gain
	EffortEstimate string           `json:"effort_estimate"` // low | medium | high
	Status         SuggestionStatus `json:"status"`
	Description    string           `json:"description"`
}

// MatchResult is the externally visible artifact of one pipeline run for a
// (resume, job) pair. Read-only once finalized, except Suggestions, which
// may be appended asynchronously after the synchronous score is returned.
type MatchResult struct {
	ID         string             `json:"id"`
	ResumeID   string             `json:"resume_id"`
	JobID      string             `json:"job_id"`
	UserID     string             `json:"user_id,omitempty"`
	State      PipelineState      `json:"state"`
	Similarity *SimilarityResult  `json:"similarity"`
	// Per-section scores scaled to 0-100 for presentation.
	SectionScores map[string]float64 `json:"section_scores"`
	Strengths     []string           `json:"strengths,omitempty"`
	SkillGaps     []string           `json:"skill_gaps,omitempty"`
	Suggestions   []Suggestion       `json:"suggestions,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// RankedJob holds one candidate in a best-match ranking, ordered by
// OverallSimilarity descending.
type RankedJob struct {
	JobID      string  `json:"job_id"`
	Similarity float64 `json:"similarity"`
}
