package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"resume-match-go/internal/constants"
	"resume-match-go/internal/types"
)

// Extraction failures are user-correctable and reported immediately, never
// retried.
var (
	// ErrUnsupportedFormat means the declared file type is not PDF or DOCX.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrExtractionFailed means the parser could not recover any usable text
	// (corrupt file, encrypted file, scanned image with no text layer).
	ErrExtractionFailed = errors.New("text extraction failed")
)

// TextSource turns raw file bytes into text plus parser metadata. The PDF
// and DOCX implementations live in this package.
type TextSource interface {
	ExtractText(ctx context.Context, data []byte, uri string) (string, map[string]interface{}, error)
}

// DocumentExtractor turns uploaded bytes into a ParsedDocument: cleaned
// text, detected sections, contact metadata and an advisory quality score.
type DocumentExtractor struct {
	pdf  TextSource
	docx TextSource
}

// Option configures a DocumentExtractor.
type Option func(*DocumentExtractor)

// WithPDFSource overrides the PDF text source.
func WithPDFSource(source TextSource) Option {
	return func(e *DocumentExtractor) { e.pdf = source }
}

// WithDOCXSource overrides the DOCX text source.
func WithDOCXSource(source TextSource) Option {
	return func(e *DocumentExtractor) { e.docx = source }
}

// New creates a DocumentExtractor. Without options it has no text sources
// wired and Extract will fail; main wires the PDF and Tika sources.
func New(options ...Option) *DocumentExtractor {
	e := &DocumentExtractor{}
	for _, option := range options {
		option(e)
	}
	return e
}

// Extract runs the full extraction flow for one uploaded file. fileType is
// the declared extension (lowercased, no dot). The quality score is
// advisory only and never blocks downstream processing.
func (e *DocumentExtractor) Extract(ctx context.Context, raw []byte, fileType string, kind types.DocumentKind) (*types.ParsedDocument, error) {
	var source TextSource
	switch strings.ToLower(strings.TrimPrefix(fileType, ".")) {
	case constants.FileTypePDF:
		source = e.pdf
	case constants.FileTypeDOCX:
		source = e.docx
	default:
		return nil, fmt.Errorf("%w: %q (supported: pdf, docx)", ErrUnsupportedFormat, fileType)
	}
	if source == nil {
		return nil, fmt.Errorf("%w: no extractor configured for %q", ErrUnsupportedFormat, fileType)
	}

	text, parserMeta, err := source.ExtractText(ctx, raw, string(kind))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	cleaned := CleanText(text)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: no text content recovered", ErrExtractionFailed)
	}

	sections := DetectSections(cleaned, kind)

	doc := &types.ParsedDocument{
		TextContent: cleaned,
		Sections:    sections,
		Metadata:    map[string]interface{}{},
	}
	for k, v := range parserMeta {
		doc.Metadata[k] = v
	}

	if kind == types.KindResume {
		doc.ContactInfo = ExtractContactInfo(cleaned)
	}

	doc.QualityScore = QualityScore(cleaned, sections, doc.ContactInfo)

	doc.Metadata["char_count"] = len(cleaned)
	doc.Metadata["word_count"] = len(strings.Fields(cleaned))
	doc.Metadata["language"] = DetectLanguage(cleaned)
	doc.Metadata["document_kind"] = string(kind)
	doc.Metadata["extracted_at"] = time.Now().UTC().Format(time.RFC3339)

	return doc, nil
}
