package embedding

import (
	"context"
	"fmt"
	"sort"

	"github.com/cloudwego/eino/components/embedding"

	"resume-match-go/internal/constants"
	"resume-match-go/internal/logger"
	"resume-match-go/internal/types"
	"resume-match-go/pkg/ratelimit"
	"resume-match-go/pkg/utils"
)

// Embedder is the subset of the eino interface this package needs, plus the
// model identity used for cache keys and version stamping.
type Embedder interface {
	EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error)
	ModelVersion() string
}

// DocumentEmbedder turns a ParsedDocument into its EmbeddingSet: one
// full-text vector, one per section long enough to be meaningful, and one
// summary vector from the document head.
type DocumentEmbedder struct {
	embedder Embedder
	cache    Cache
	limiter  *ratelimit.TokenBucket
}

// DocumentEmbedderOption configures a DocumentEmbedder.
type DocumentEmbedderOption func(*DocumentEmbedder)

// WithCache enables content-addressed vector caching.
func WithCache(cache Cache) DocumentEmbedderOption {
	return func(d *DocumentEmbedder) { d.cache = cache }
}

// WithLimiter throttles and retries the embedding API calls.
func WithLimiter(limiter *ratelimit.TokenBucket) DocumentEmbedderOption {
	return func(d *DocumentEmbedder) { d.limiter = limiter }
}

// NewDocumentEmbedder wires a DocumentEmbedder. Without a cache every call
// hits the API; without a limiter calls go out unthrottled and unretried.
func NewDocumentEmbedder(embedder Embedder, options ...DocumentEmbedderOption) *DocumentEmbedder {
	d := &DocumentEmbedder{embedder: embedder}
	for _, option := range options {
		option(d)
	}
	return d
}

// GenerateEmbeddings produces the full EmbeddingSet for one document.
// Cached vectors are reused; all misses go to the API in a single batch
// call. The returned set always carries at least the full_text vector.
func (d *DocumentEmbedder) GenerateEmbeddings(ctx context.Context, doc *types.ParsedDocument) (*types.EmbeddingSet, error) {
	if doc == nil || doc.TextContent == "" {
		return nil, fmt.Errorf("document has no text content to embed")
	}

	texts := d.collectTexts(doc)
	modelVersion := d.embedder.ModelVersion()
	log := logger.Ctx(ctx)

	set := &types.EmbeddingSet{
		Vectors:      make(map[string][]float64, len(texts)),
		ModelVersion: modelVersion,
	}

	// Cache pass first; only misses are sent to the API.
	var missLabels []string
	var missTexts []string
	for _, label := range sortedLabels(texts) {
		text := texts[label]
		if d.cache != nil {
			vector, hit, err := d.cache.Get(ctx, modelVersion, utils.ContentHash(text))
			if err != nil {
				log.Warn().Err(err).Str("label", label).Msg("embedding cache read failed")
			} else if hit {
				set.Vectors[label] = vector
				continue
			}
		}
		missLabels = append(missLabels, label)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		var vectors [][]float64
		embed := func() error {
			var err error
			vectors, err = d.embedder.EmbedStrings(ctx, missTexts)
			return err
		}

		var err error
		if d.limiter != nil {
			err = d.limiter.RetryWithBackoff(ctx, embed)
		} else {
			err = embed()
		}
		if err != nil {
			return nil, fmt.Errorf("embedding generation failed: %w", err)
		}
		if len(vectors) != len(missTexts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missTexts))
		}

		for i, label := range missLabels {
			set.Vectors[label] = vectors[i]
			if d.cache != nil {
				if err := d.cache.Set(ctx, modelVersion, utils.ContentHash(missTexts[i]), vectors[i]); err != nil {
					log.Warn().Err(err).Str("label", label).Msg("embedding cache write failed")
				}
			}
		}
	}

	log.Debug().
		Int("vectors", len(set.Vectors)).
		Int("api_calls", len(missTexts)).
		Str("model_version", modelVersion).
		Msg("document embeddings ready")

	return set, nil
}

// collectTexts picks what gets embedded: the full text, each section with
// enough content, and a summary built from the document head.
func (d *DocumentEmbedder) collectTexts(doc *types.ParsedDocument) map[string]string {
	texts := map[string]string{
		types.EmbeddingFullText: doc.TextContent,
	}

	for name, body := range doc.Sections {
		if len(body) >= constants.MinSectionChars {
			texts[types.SectionEmbeddingKey(name)] = body
		}
	}

	summary := doc.TextContent
	if len(summary) > constants.SummaryPrefixChars {
		summary = summary[:constants.SummaryPrefixChars]
	}
	texts[types.EmbeddingSummary] = summary

	return texts
}

// sortedLabels keeps the batch order deterministic.
func sortedLabels(texts map[string]string) []string {
	labels := make([]string, 0, len(texts))
	for label := range texts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
