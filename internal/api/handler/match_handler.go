package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	"resume-match-go/internal/pipeline"
	"resume-match-go/internal/types"
)

// MatchHandler coordinates the HTTP surface with the pipeline orchestrator.
type MatchHandler struct {
	cfg          *config.Config
	orchestrator *pipeline.Orchestrator
}

// NewMatchHandler creates the handler behind all /api/v1 routes.
func NewMatchHandler(cfg *config.Config, orchestrator *pipeline.Orchestrator) *MatchHandler {
	return &MatchHandler{
		cfg:          cfg,
		orchestrator: orchestrator,
	}
}

// DocumentUploadResponse is returned from POST /documents.
type DocumentUploadResponse struct {
	DocumentID   string  `json:"document_id"`
	Kind         string  `json:"kind"`
	Status       string  `json:"status"`
	QualityScore float64 `json:"quality_score"`
	LanguageHint string  `json:"language_hint,omitempty"`
}

// HandleDocumentUpload ingests one uploaded resume or job description.
func (h *MatchHandler) HandleDocumentUpload(ctx context.Context, reader io.Reader, filename, kind, userID string) (*DocumentUploadResponse, error) {
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	fileType := normalizeFileType(filename)
	if fileType == "" {
		return nil, fmt.Errorf("unsupported file type for %q, expected .pdf or .docx", filename)
	}

	doc, err := h.orchestrator.IngestDocument(ctx, pipeline.IngestParams{
		UserID:   userID,
		FileName: filename,
		FileType: fileType,
		Kind:     types.DocumentKind(kind),
		Raw:      raw,
	})
	if err != nil {
		return nil, err
	}

	return &DocumentUploadResponse{
		DocumentID:   doc.ID,
		Kind:         doc.Kind,
		Status:       doc.Status,
		QualityScore: doc.QualityScore,
		LanguageHint: doc.LanguageHint,
	}, nil
}

// HandleDeleteDocument removes a document and its stored artifacts.
func (h *MatchHandler) HandleDeleteDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return errors.New("document id is required")
	}
	return h.orchestrator.DeleteDocument(ctx, documentID)
}

// CreateMatchRequest is the body of POST /matches.
type CreateMatchRequest struct {
	ResumeID string `json:"resume_id"`
	JobID    string `json:"job_id"`
	UserID   string `json:"user_id"`
}

// HandleCreateMatch runs (or returns) the match for a pair.
func (h *MatchHandler) HandleCreateMatch(ctx context.Context, req *CreateMatchRequest) (*types.MatchResult, error) {
	if req.ResumeID == "" || req.JobID == "" {
		return nil, errors.New("resume_id and job_id are required")
	}
	return h.orchestrator.RunMatch(ctx, req.ResumeID, req.JobID, req.UserID)
}

// HandleGetMatch looks up a match by id.
func (h *MatchHandler) HandleGetMatch(ctx context.Context, matchID string) (*types.MatchResult, error) {
	if matchID == "" {
		return nil, errors.New("match id is required")
	}
	return h.orchestrator.GetMatch(ctx, matchID)
}

// ResolveSuggestionRequest is the body of PATCH /suggestions/:id.
type ResolveSuggestionRequest struct {
	Status string `json:"status"` // implemented | rejected
}

// HandleResolveSuggestion applies the user's decision to one suggestion.
func (h *MatchHandler) HandleResolveSuggestion(ctx context.Context, suggestionID string, req *ResolveSuggestionRequest) error {
	if suggestionID == "" {
		return errors.New("suggestion id is required")
	}
	return h.orchestrator.ResolveSuggestion(ctx, suggestionID, types.SuggestionStatus(req.Status))
}

// RankJobsResponse is returned from GET /resumes/:id/best-matches.
type RankJobsResponse struct {
	ResumeID string            `json:"resume_id"`
	Jobs     []types.RankedJob `json:"jobs"`
}

// HandleRankJobs ranks indexed jobs against one resume.
func (h *MatchHandler) HandleRankJobs(ctx context.Context, resumeID string, limit int) (*RankJobsResponse, error) {
	if resumeID == "" {
		return nil, errors.New("resume id is required")
	}
	if limit <= 0 {
		limit = h.cfg.Qdrant.DefaultSearchLimit
		if limit <= 0 {
			limit = 10
		}
	}

	jobs, err := h.orchestrator.RankJobs(ctx, resumeID, limit)
	if err != nil {
		return nil, err
	}
	return &RankJobsResponse{ResumeID: resumeID, Jobs: jobs}, nil
}

// normalizeFileType maps a filename to the stored file type, or "" when the
// extension is not an ingestable format.
func normalizeFileType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return constants.FileTypePDF
	case ".docx":
		return constants.FileTypeDOCX
	default:
		return ""
	}
}
