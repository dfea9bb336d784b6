package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"resume-match-go/internal/constants"
	"resume-match-go/internal/logger"
	"resume-match-go/internal/storage/models"
	"resume-match-go/internal/tracing"
	"resume-match-go/internal/types"
	"resume-match-go/pkg/utils"
)

// IngestParams describes one upload.
type IngestParams struct {
	UserID   string
	FileName string
	FileType string // declared extension, pdf or docx
	Kind     types.DocumentKind
	Raw      []byte
}

// IngestDocument runs the upload flow: dedup by content MD5, store the raw
// bytes, extract, persist the document row and the parsed text. A duplicate
// upload returns the existing document without re-extracting.
func (o *Orchestrator) IngestDocument(ctx context.Context, params IngestParams) (*models.Document, error) {
	if !params.Kind.Valid() {
		return nil, fmt.Errorf("invalid document kind %q", params.Kind)
	}
	if len(params.Raw) == 0 {
		return nil, fmt.Errorf("empty upload")
	}

	ctx, span := pipelineTracer.Start(ctx, "pipeline.IngestDocument")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.kind", string(params.Kind)),
		attribute.String("document.file_type", params.FileType),
	)

	log := logger.Ctx(ctx)
	contentMD5 := utils.CalculateMD5(params.Raw)

	// Same bytes from the same user map to the existing document.
	if existing, err := o.store.GetDocumentByMD5(ctx, params.UserID, contentMD5); err == nil {
		log.Info().Str("document_id", existing.ID).Msg("duplicate upload, returning existing document")
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("upload dedup lookup failed: %w", err)
	}

	if o.dedup != nil {
		if _, err := o.dedup.CheckAndRecordUpload(ctx, contentMD5); err != nil {
			log.Warn().Err(err).Msg("dedup set update failed, continuing")
		}
	}

	documentID := uuid.New().String()

	originalPath, err := o.objects.UploadOriginal(ctx, documentID, params.FileType, params.Raw)
	if err != nil {
		return nil, fmt.Errorf("failed to store original: %w", err)
	}

	doc := &models.Document{
		ID:           documentID,
		UserID:       params.UserID,
		Kind:         string(params.Kind),
		FileName:     params.FileName,
		FileType:     params.FileType,
		ContentMD5:   contentMD5,
		OriginalPath: originalPath,
		Status:       constants.DocStatusUploaded,
	}
	if err := o.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to persist document: %w", err)
	}

	parsed, err := o.extractor.Extract(ctx, params.Raw, params.FileType, params.Kind)
	if err != nil {
		tracing.RecordErrorWithInfo(span, err, tracing.ErrorTypeExtraction,
			attribute.String("document.id", documentID),
			attribute.String("document.file_name", tracing.TruncateString(params.FileName, tracing.DefaultMaxLength)),
		)
		_ = o.store.UpdateDocumentExtraction(ctx, documentID, map[string]interface{}{
			"status": constants.DocStatusFailed,
		})
		// The rejected upload keeps its row (status=failed) but not its bytes.
		if delErr := o.objects.DeleteOriginal(ctx, originalPath); delErr != nil {
			log.Warn().Err(delErr).Str("document_id", documentID).Msg("failed to remove rejected original")
		}
		log.Warn().Err(err).Str("document_id", documentID).Msg("extraction failed")
		return nil, fmt.Errorf("extraction failed for %s: %w", documentID, err)
	}

	parsedPath, err := o.objects.UploadParsedText(ctx, documentID, parsed.TextContent)
	if err != nil {
		return nil, fmt.Errorf("failed to store parsed text: %w", err)
	}

	updates := map[string]interface{}{
		"parsed_text_path": parsedPath,
		"status":           constants.DocStatusExtracted,
		"quality_score":    parsed.QualityScore,
		"contact_info":     utils.ConvertMapToJSON(parsed.ContactInfo),
		"sections":         utils.ConvertMapToJSON(parsed.Sections),
		"metadata":         mustJSON(parsed.Metadata),
	}
	if lang, ok := parsed.Metadata["language"].(string); ok {
		updates["language_hint"] = lang
	}
	if err := o.store.UpdateDocumentExtraction(ctx, documentID, updates); err != nil {
		return nil, fmt.Errorf("failed to persist extraction result: %w", err)
	}

	// Job vectors go to the search index at ingest time so best-match
	// ranking doesn't re-embed the whole corpus per query.
	if params.Kind == types.KindJobDescription && o.vectors != nil {
		o.indexJobVector(ctx, documentID, parsed)
	}

	doc, err = o.store.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload document: %w", err)
	}

	span.SetAttributes(
		attribute.String("document.id", documentID),
		attribute.Float64("document.quality_score", parsed.QualityScore),
		attribute.String("document.preview", tracing.TruncateString(parsed.TextContent, tracing.MaxDocumentLength)),
	)
	if email, ok := parsed.ContactInfo["email"]; ok {
		span.SetAttributes(attribute.String("contact.email", tracing.SafeAttributeValue("email", email)))
	}

	log.Info().
		Str("document_id", documentID).
		Str("kind", string(params.Kind)).
		Float64("quality_score", parsed.QualityScore).
		Msg("document ingested")
	return doc, nil
}

// DeleteDocument removes a document, its original object and, for jobs, its
// search-index vector. Match records that reference it keep their scores.
func (o *Orchestrator) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := o.store.GetDocumentByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
		}
		return fmt.Errorf("failed to load document %s: %w", documentID, err)
	}

	log := logger.Ctx(ctx)
	if doc.OriginalPath != "" {
		if err := o.objects.DeleteOriginal(ctx, doc.OriginalPath); err != nil {
			log.Warn().Err(err).Str("document_id", documentID).Msg("failed to delete original object")
		}
	}
	if doc.Kind == string(types.KindJobDescription) && o.vectors != nil {
		if err := o.vectors.DeleteJobVector(ctx, documentID); err != nil {
			log.Warn().Err(err).Str("document_id", documentID).Msg("failed to delete job vector")
		}
	}

	if err := o.store.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	log.Info().Str("document_id", documentID).Msg("document deleted")
	return nil
}

// indexJobVector embeds and upserts a job's full-text vector. Best effort:
// the document is usable for direct matches even when indexing fails.
func (o *Orchestrator) indexJobVector(ctx context.Context, documentID string, parsed *types.ParsedDocument) {
	set, err := o.embedder.GenerateEmbeddings(ctx, parsed)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("document_id", documentID).Msg("job vector embedding failed, skipping index")
		return
	}
	vector, ok := set.Get(types.EmbeddingFullText)
	if !ok {
		return
	}
	payload := map[string]interface{}{
		"model_version": set.ModelVersion,
		"indexed_at":    time.Now().UTC().Format(time.RFC3339),
	}
	if err := o.vectors.UpsertJobVector(ctx, documentID, vector, payload); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("document_id", documentID).Msg("job vector upsert failed")
	}
}

// loadParsedDocument reconstructs the ParsedDocument for a stored document,
// preferring persisted extraction artifacts over a re-parse of the
// original.
func (o *Orchestrator) loadParsedDocument(ctx context.Context, documentID string, wantKind types.DocumentKind) (*models.Document, *types.ParsedDocument, error) {
	doc, err := o.store.GetDocumentByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
		}
		return nil, nil, fmt.Errorf("failed to load document %s: %w", documentID, err)
	}
	if doc.Kind != string(wantKind) {
		return nil, nil, fmt.Errorf("document %s is a %s, expected %s", documentID, doc.Kind, wantKind)
	}

	if doc.ParsedTextPath != "" {
		text, err := o.objects.GetParsedText(ctx, doc.ParsedTextPath)
		if err == nil && text != "" {
			return doc, o.parsedFromRow(doc, text), nil
		}
		logger.Ctx(ctx).Warn().Err(err).Str("document_id", documentID).Msg("parsed text unavailable, re-extracting")
	}

	// Fall back to re-extraction from the original bytes.
	raw, err := o.objects.GetOriginal(ctx, doc.OriginalPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load original for %s: %w", documentID, err)
	}
	parsed, err := o.extractor.Extract(ctx, raw, doc.FileType, types.DocumentKind(doc.Kind))
	if err != nil {
		return nil, nil, err
	}
	return doc, parsed, nil
}

// parsedFromRow rebuilds a ParsedDocument from the row's persisted
// extraction columns.
func (o *Orchestrator) parsedFromRow(doc *models.Document, text string) *types.ParsedDocument {
	parsed := &types.ParsedDocument{
		TextContent:  text,
		Sections:     map[string]string{},
		QualityScore: doc.QualityScore,
		Metadata:     map[string]interface{}{},
	}
	if len(doc.Sections) > 0 {
		_ = json.Unmarshal(doc.Sections, &parsed.Sections)
	}
	if len(doc.ContactInfo) > 0 {
		_ = json.Unmarshal(doc.ContactInfo, &parsed.ContactInfo)
	}
	if len(doc.Metadata) > 0 {
		_ = json.Unmarshal(doc.Metadata, &parsed.Metadata)
	}
	return parsed
}

func mustJSON(m map[string]interface{}) []byte {
	data, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return data
}
