package extractor

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"

	"resume-match-go/internal/logger"
)

// EinoPDFSource extracts text from PDF bytes with the Eino PDF parser.
type EinoPDFSource struct {
	parser  *pdf.PDFParser
	timeout time.Duration
}

// EinoPDFOption configures an EinoPDFSource.
type EinoPDFOption func(*EinoPDFSource)

// WithParseTimeout overrides the per-document parse timeout.
func WithParseTimeout(timeout time.Duration) EinoPDFOption {
	return func(e *EinoPDFSource) { e.timeout = timeout }
}

// NewEinoPDFSource initializes the PDF text source. ToPages is off so the
// whole document comes back as one continuous string.
func NewEinoPDFSource(ctx context.Context, options ...EinoPDFOption) (*EinoPDFSource, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino PDF parser: %w", err)
	}

	source := &EinoPDFSource{
		parser:  p,
		timeout: 30 * time.Second,
	}
	for _, option := range options {
		option(source)
	}
	return source, nil
}

var _ TextSource = (*EinoPDFSource)(nil)

// ExtractText parses PDF bytes into text and parser metadata.
func (e *EinoPDFSource) ExtractText(ctx context.Context, data []byte, uri string) (string, map[string]interface{}, error) {
	startTime := time.Now()
	log := logger.Ctx(ctx)
	log.Debug().Str("uri", uri).Int("bytes", len(data)).Msg("starting PDF extraction")

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	extraMeta := map[string]interface{}{
		"source_uri":      uri,
		"extraction_time": time.Now().Format(time.RFC3339),
	}

	docs, err := e.parser.Parse(ctx, bytes.NewReader(data),
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(extraMeta),
	)
	duration := time.Since(startTime)
	if err != nil {
		log.Warn().Err(err).Str("uri", uri).Dur("duration", duration).Msg("PDF parse failed")
		return "", extraMeta, fmt.Errorf("eino PDF parser failed for %s: %w", uri, err)
	}
	if len(docs) == 0 {
		return "", extraMeta, fmt.Errorf("eino PDF parser returned no documents for %s", uri)
	}

	// Merge in case the parser splits the document anyway.
	var fullContent string
	for i, doc := range docs {
		fullContent += doc.Content
		if i < len(docs)-1 {
			fullContent += "\n\n"
		}
	}

	metadata := make(map[string]interface{})
	if docs[0].MetaData != nil {
		metadata = docs[0].MetaData
	}
	for k, v := range extraMeta {
		metadata[k] = v
	}
	metadata["processing_duration_ms"] = duration.Milliseconds()
	metadata["parser"] = "eino_pdf"

	log.Debug().Str("uri", uri).Int("chars", len(fullContent)).Dur("duration", duration).Msg("PDF extraction done")
	return fullContent, metadata, nil
}
