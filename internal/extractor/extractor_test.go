package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-match-go/internal/types"
)

// stubSource is a TextSource returning canned output.
type stubSource struct {
	text string
	meta map[string]interface{}
	err  error
}

func (s *stubSource) ExtractText(ctx context.Context, data []byte, uri string) (string, map[string]interface{}, error) {
	return s.text, s.meta, s.err
}

func TestExtractUnsupportedFormat(t *testing.T) {
	e := New(WithPDFSource(&stubSource{text: "irrelevante"}))

	_, err := e.Extract(context.Background(), []byte("dados"), "txt", types.KindResume)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractNoSourceConfigured(t *testing.T) {
	e := New(WithPDFSource(&stubSource{text: "irrelevante"}))

	_, err := e.Extract(context.Background(), []byte("dados"), "docx", types.KindResume)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractParserFailure(t *testing.T) {
	e := New(WithPDFSource(&stubSource{err: errors.New("encrypted file")}))

	_, err := e.Extract(context.Background(), []byte("dados"), "pdf", types.KindResume)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractEmptyText(t *testing.T) {
	e := New(WithPDFSource(&stubSource{text: "   \n\n  "}))

	_, err := e.Extract(context.Background(), []byte("dados"), "pdf", types.KindResume)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractResumeFlow(t *testing.T) {
	e := New(WithPDFSource(&stubSource{
		text: sampleResume,
		meta: map[string]interface{}{"parser": "stub"},
	}))

	doc, err := e.Extract(context.Background(), []byte("%PDF-1.7"), "pdf", types.KindResume)
	require.NoError(t, err)

	assert.Contains(t, doc.Sections, types.SectionSkills)
	assert.Equal(t, "ana.silva@example.com", doc.ContactInfo[types.ContactEmail])
	assert.Greater(t, doc.QualityScore, 0.0)

	assert.Equal(t, "stub", doc.Metadata["parser"])
	assert.Equal(t, "pt-br", doc.Metadata["language"])
	assert.Equal(t, string(types.KindResume), doc.Metadata["document_kind"])
}

func TestExtractJobHasNoContactInfo(t *testing.T) {
	e := New(WithPDFSource(&stubSource{text: sampleJob}))

	doc, err := e.Extract(context.Background(), []byte("%PDF-1.7"), "pdf", types.KindJobDescription)
	require.NoError(t, err)

	assert.Empty(t, doc.ContactInfo)
	assert.Contains(t, doc.Sections, types.SectionRequirements)
}
