package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"resume-match-go/internal/config"
	"resume-match-go/internal/logger"
)

var qdrantTracer = otel.Tracer("resume-match-go/storage/qdrant")

// jobPointNamespace generates deterministic point IDs from job ids, so
// re-upserting the same job overwrites its point instead of duplicating it.
var jobPointNamespace = uuid.Must(uuid.FromString("9b1dfa6e-3c84-4c0e-9f57-2d41c7a8b5f3"))

// Qdrant stores job full-text vectors for best-match search across many
// jobs. Small candidate sets are ranked in-process; this backend covers the
// many-jobs case.
type Qdrant struct {
	endpoint       string
	collectionName string
	dimension      int
	httpClient     *http.Client
}

// QdrantOption configures a Qdrant client.
type QdrantOption func(*Qdrant)

// WithHTTPTimeout overrides the request timeout.
func WithHTTPTimeout(timeout time.Duration) QdrantOption {
	return func(q *Qdrant) { q.httpClient = &http.Client{Timeout: timeout} }
}

// NewQdrant connects over the HTTP API and ensures the collection exists.
func NewQdrant(cfg *config.QdrantConfig, opts ...QdrantOption) (*Qdrant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qdrant config cannot be nil")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:6333"
	}

	q := &Qdrant{
		endpoint:       endpoint,
		collectionName: cfg.Collection,
		dimension:      cfg.Dimension,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(q)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := q.ensureCollectionExists(ctx); err != nil {
		return nil, err
	}

	logger.Info().Str("endpoint", endpoint).Str("collection", cfg.Collection).Msg("connected to Qdrant")
	return q, nil
}

func (q *Qdrant) ensureCollectionExists(ctx context.Context) error {
	var statusResp struct {
		Result struct {
			Status string `json:"status"`
		} `json:"result"`
	}
	err := q.doRequest(ctx, http.MethodGet, "/collections/"+q.collectionName, nil, &statusResp)
	if err == nil {
		return nil
	}
	return q.createCollection(ctx)
}

func (q *Qdrant) createCollection(ctx context.Context) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     q.dimension,
			"distance": "Cosine",
		},
	}
	var createResp struct {
		Result bool `json:"result"`
	}
	if err := q.doRequest(ctx, http.MethodPut, "/collections/"+q.collectionName, body, &createResp); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", q.collectionName, err)
	}
	return nil
}

// JobPointID derives the deterministic Qdrant point id for a job.
func JobPointID(jobID string) string {
	return uuid.NewV5(jobPointNamespace, jobID).String()
}

// UpsertJobVector writes a job's full-text vector with its payload.
// Idempotent per job id.
func (q *Qdrant) UpsertJobVector(ctx context.Context, jobID string, vector []float64, payload map[string]interface{}) error {
	ctx, span := qdrantTracer.Start(ctx, "qdrant.upsert_job_vector",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "qdrant"),
			attribute.String("job_id", jobID),
		),
	)
	defer span.End()

	if len(vector) != q.dimension {
		err := fmt.Errorf("vector dimension %d does not match collection dimension %d", len(vector), q.dimension)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["job_id"] = jobID

	body := map[string]interface{}{
		"points": []map[string]interface{}{
			{
				"id":      JobPointID(jobID),
				"vector":  vector,
				"payload": payload,
			},
		},
	}

	var upsertResp struct {
		Result struct {
			Status string `json:"status"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", q.collectionName)
	if err := q.doRequest(ctx, http.MethodPut, path, body, &upsertResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to upsert job vector: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// JobSearchResult is one ranked hit from the vector search.
type JobSearchResult struct {
	JobID string
	Score float64
}

// SearchSimilarJobs ranks stored jobs against a resume's full-text vector,
// best first.
func (q *Qdrant) SearchSimilarJobs(ctx context.Context, queryVector []float64, limit int) ([]JobSearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "qdrant.search_similar_jobs",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "qdrant"),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if limit <= 0 {
		limit = 10
	}

	body := map[string]interface{}{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}

	var searchResp struct {
		Result []struct {
			ID      interface{}            `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", q.collectionName)
	if err := q.doRequest(ctx, http.MethodPost, path, body, &searchResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("job vector search failed: %w", err)
	}

	results := make([]JobSearchResult, 0, len(searchResp.Result))
	for _, hit := range searchResp.Result {
		jobID, _ := hit.Payload["job_id"].(string)
		if jobID == "" {
			continue
		}
		results = append(results, JobSearchResult{JobID: jobID, Score: hit.Score})
	}

	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "")
	return results, nil
}

// DeleteJobVector removes a job's point.
func (q *Qdrant) DeleteJobVector(ctx context.Context, jobID string) error {
	body := map[string]interface{}{
		"points": []string{JobPointID(jobID)},
	}
	var deleteResp struct {
		Result struct {
			Status string `json:"status"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collectionName)
	if err := q.doRequest(ctx, http.MethodPost, path, body, &deleteResp); err != nil {
		return fmt.Errorf("failed to delete job vector: %w", err)
	}
	return nil
}

// doRequest runs one JSON request against the Qdrant HTTP API.
func (q *Qdrant) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.endpoint+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("qdrant returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
