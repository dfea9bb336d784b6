package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"resume-match-go/internal/logger"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// TikaDOCXSource extracts text from DOCX bytes through an Apache Tika
// server. Tika handles the OOXML unpacking server-side; we only speak its
// plain-text endpoint.
type TikaDOCXSource struct {
	ServerURL string
	Client    *http.Client

	extractMetadata bool
}

// TikaOption configures a TikaDOCXSource.
type TikaOption func(*TikaDOCXSource)

// WithTikaTimeout overrides the HTTP client timeout.
func WithTikaTimeout(timeout time.Duration) TikaOption {
	return func(e *TikaDOCXSource) { e.Client.Timeout = timeout }
}

// WithTikaMetadata toggles the extra /meta round trip per document.
func WithTikaMetadata(extract bool) TikaOption {
	return func(e *TikaDOCXSource) { e.extractMetadata = extract }
}

var _ TextSource = (*TikaDOCXSource)(nil)

// NewTikaDOCXSource creates a DOCX text source against the given Tika
// server, e.g. http://localhost:9998.
func NewTikaDOCXSource(serverURL string, options ...TikaOption) *TikaDOCXSource {
	source := &TikaDOCXSource{
		ServerURL: serverURL,
		Client: &http.Client{
			Timeout: 60 * time.Second,
		},
		extractMetadata: true,
	}
	for _, option := range options {
		option(source)
	}
	return source
}

// ExtractText sends the document to Tika's /tika endpoint and returns the
// plain-text body. Metadata extraction failures are logged and skipped; the
// text result stands on its own.
func (e *TikaDOCXSource) ExtractText(ctx context.Context, data []byte, uri string) (string, map[string]interface{}, error) {
	startTime := time.Now()
	log := logger.Ctx(ctx)

	baseMetadata := map[string]interface{}{
		"source_uri":      uri,
		"extraction_time": time.Now().Format(time.RFC3339),
		"parser":          "tika_docx",
	}

	url := fmt.Sprintf("%s/tika", e.ServerURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", baseMetadata, fmt.Errorf("failed to build tika request: %w", err)
	}
	req.Header.Set("Content-Type", docxContentType)
	req.Header.Set("Accept", "text/plain")
	if uri != "" {
		req.Header.Set("X-Tika-Resource-Name", uri)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", baseMetadata, fmt.Errorf("tika request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", baseMetadata, fmt.Errorf("tika server returned status %d", resp.StatusCode)
	}

	textBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", baseMetadata, fmt.Errorf("failed to read tika response: %w", err)
	}
	text := string(textBytes)

	baseMetadata["processing_duration_ms"] = time.Since(startTime).Milliseconds()

	if e.extractMetadata {
		meta, err := e.fetchMetadata(ctx, data, uri)
		if err != nil {
			log.Warn().Err(err).Str("uri", uri).Msg("tika metadata extraction failed, keeping text result")
		} else {
			for k, v := range meta {
				if isImportantTikaKey(k) {
					baseMetadata[k] = v
				}
			}
		}
	}

	log.Debug().Str("uri", uri).Int("chars", len(text)).Msg("DOCX extraction done")
	return text, baseMetadata, nil
}

// fetchMetadata hits Tika's /meta endpoint for document properties.
func (e *TikaDOCXSource) fetchMetadata(ctx context.Context, data []byte, uri string) (map[string]interface{}, error) {
	url := fmt.Sprintf("%s/meta", e.ServerURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build tika meta request: %w", err)
	}
	req.Header.Set("Content-Type", docxContentType)
	req.Header.Set("Accept", "application/json")
	if uri != "" {
		req.Header.Set("X-Tika-Resource-Name", uri)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tika meta request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tika server returned status %d", resp.StatusCode)
	}

	metadataBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tika meta response: %w", err)
	}

	var metadata map[string]interface{}
	if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode tika metadata: %w", err)
	}
	return metadata, nil
}

func isImportantTikaKey(key string) bool {
	importantKeys := map[string]bool{
		"dc:title":          true,
		"dc:creator":        true,
		"dcterms:created":   true,
		"dcterms:modified":  true,
		"language":          true,
		"Content-Type":      true,
		"meta:word-count":   true,
		"meta:page-count":   true,
		"extended-properties:Application": true,
	}
	return importantKeys[key]
}
