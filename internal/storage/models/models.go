package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"resume-match-go/internal/types"
)

// Document is one ingested resume or job description. The raw upload lives
// in object storage; this row carries the extraction artifacts.
type Document struct {
	ID       string `gorm:"type:varchar(36);primaryKey"`
	UserID   string `gorm:"type:varchar(36);index"`
	Kind     string `gorm:"type:varchar(20);not null"` // resume | job_description
	FileName string `gorm:"type:varchar(255)"`
	FileType string `gorm:"type:varchar(10)"` // pdf | docx

	// ContentMD5 backs upload dedup; the same bytes re-uploaded map to the
	// same object.
	ContentMD5     string `gorm:"type:varchar(32);index"`
	OriginalPath   string `gorm:"type:varchar(512)"` // object key in the originals bucket
	ParsedTextPath string `gorm:"type:varchar(512)"` // object key in the parsed-text bucket

	Status       string  `gorm:"type:varchar(20);index"` // uploaded | extracted | failed
	QualityScore float64 `gorm:"type:decimal(5,2)"`
	LanguageHint string  `gorm:"type:varchar(10)"`

	ContactInfo datatypes.JSON `gorm:"type:json"`
	Sections    datatypes.JSON `gorm:"type:json"`
	Metadata    datatypes.JSON `gorm:"type:json"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Document) TableName() string { return "documents" }

// MatchRecord is the persisted MatchResult. The composite unique index on
// (resume_id, job_id) enforces the one-canonical-result-per-pair invariant.
type MatchRecord struct {
	ID       string `gorm:"type:varchar(36);primaryKey"`
	ResumeID string `gorm:"type:varchar(36);uniqueIndex:idx_resume_job,priority:1;not null"`
	JobID    string `gorm:"type:varchar(36);uniqueIndex:idx_resume_job,priority:2;not null"`
	UserID   string `gorm:"type:varchar(36);index"`

	State string `gorm:"type:varchar(20);index;not null"`

	OverallSimilarity float64 `gorm:"type:decimal(8,6)"`
	KeywordSimilarity float64 `gorm:"type:decimal(8,6)"`
	ConfidenceScore   float64 `gorm:"type:decimal(8,6)"`

	SectionSimilarities datatypes.JSON `gorm:"type:json"`
	SectionScores       datatypes.JSON `gorm:"type:json"` // 0-100, per category
	Strengths           datatypes.JSON `gorm:"type:json"`
	SkillGaps           datatypes.JSON `gorm:"type:json"`

	ErrorMessage *string `gorm:"type:text"`

	Suggestions []SuggestionRecord `gorm:"foreignKey:MatchID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (MatchRecord) TableName() string { return "match_records" }

// SuggestionRecord is one LLM-produced recommendation. Rows are appended in
// batches after scoring; afterwards only Status changes.
type SuggestionRecord struct {
	ID      string `gorm:"type:varchar(36);primaryKey"`
	MatchID string `gorm:"type:varchar(36);index;not null"`

	Type           string  `gorm:"type:varchar(20)"`
	Priority       int     `gorm:"type:tinyint"`
	ImpactScore    float64 `gorm:"type:decimal(6,2)"`
	EffortEstimate string  `gorm:"type:varchar(10)"`
	Status         string  `gorm:"type:varchar(20);index"`
	Description    string  `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SuggestionRecord) TableName() string { return "match_suggestions" }

// ToSuggestion converts a row into the pipeline type.
func (s *SuggestionRecord) ToSuggestion() types.Suggestion {
	return types.Suggestion{
		ID:             s.ID,
		Type:           types.SuggestionType(s.Type),
		Priority:       s.Priority,
		ImpactScore:    s.ImpactScore,
		EffortEstimate: s.EffortEstimate,
		Status:         types.SuggestionStatus(s.Status),
		Description:    s.Description,
	}
}

// FromSuggestion converts the pipeline type into a row.
func FromSuggestion(matchID string, s types.Suggestion) SuggestionRecord {
	return SuggestionRecord{
		ID:             s.ID,
		MatchID:        matchID,
		Type:           string(s.Type),
		Priority:       s.Priority,
		ImpactScore:    s.ImpactScore,
		EffortEstimate: s.EffortEstimate,
		Status:         string(s.Status),
		Description:    s.Description,
	}
}

// ToMatchResult converts a row plus its suggestion rows into the external
// MatchResult shape.
func (m *MatchRecord) ToMatchResult() *types.MatchResult {
	result := &types.MatchResult{
		ID:       m.ID,
		ResumeID: m.ResumeID,
		JobID:    m.JobID,
		UserID:   m.UserID,
		State:    types.PipelineState(m.State),
		Similarity: &types.SimilarityResult{
			OverallSimilarity: m.OverallSimilarity,
			KeywordSimilarity: m.KeywordSimilarity,
			ConfidenceScore:   m.ConfidenceScore,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}

	if len(m.SectionSimilarities) > 0 {
		_ = json.Unmarshal(m.SectionSimilarities, &result.Similarity.SectionSimilarities)
	}
	if len(m.SectionScores) > 0 {
		_ = json.Unmarshal(m.SectionScores, &result.SectionScores)
	}
	if len(m.Strengths) > 0 {
		_ = json.Unmarshal(m.Strengths, &result.Strengths)
	}
	if len(m.SkillGaps) > 0 {
		_ = json.Unmarshal(m.SkillGaps, &result.SkillGaps)
	}

	for i := range m.Suggestions {
		result.Suggestions = append(result.Suggestions, m.Suggestions[i].ToSuggestion())
	}
	return result
}
