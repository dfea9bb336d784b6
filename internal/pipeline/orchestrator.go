package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"resume-match-go/internal/config"
	"resume-match-go/internal/logger"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/storage/models"
	"resume-match-go/internal/tracing"
	"resume-match-go/internal/types"
	"resume-match-go/pkg/ratelimit"
	"resume-match-go/pkg/utils"
)

var pipelineTracer = otel.Tracer("resume-match/pipeline")

const (
	// matchLockTTL bounds how long a crashed run can block the pair.
	matchLockTTL = 2 * time.Minute

	// strengthThreshold and gapThreshold split section similarities into
	// the strengths / skill-gaps presentation lists.
	strengthThreshold = 0.7
	gapThreshold      = 0.4

	// maxSuggestionTaskAttempts bounds requeues of a failing background
	// suggestion task before it completes empty.
	maxSuggestionTaskAttempts = 3
)

// Orchestrator drives the match pipeline across its collaborators. One
// instance is shared by the HTTP handlers and the queue consumer.
type Orchestrator struct {
	store     MatchStore
	objects   ObjectStore
	extractor Extractor
	embedder  EmbeddingGenerator
	scorer    SimilarityScorer
	suggester SuggestionGenerator

	queue   TaskQueue   // nil runs suggestions synchronously
	dedup   DedupStore  // nil skips cross-instance locks
	vectors VectorIndex // nil disables best-match ranking

	suggestTimeout time.Duration
	rateCfg        config.RateLimitConfig

	limiterMutex sync.Mutex
	userLimiters map[string]*ratelimit.TokenBucket
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

// WithTaskQueue moves suggestion generation to a background consumer.
func WithTaskQueue(queue TaskQueue) Option {
	return func(o *Orchestrator) { o.queue = queue }
}

// WithDedupStore enables Redis-backed upload dedup and pair locks.
func WithDedupStore(dedup DedupStore) Option {
	return func(o *Orchestrator) { o.dedup = dedup }
}

// WithVectorIndex enables job indexing and best-match ranking.
func WithVectorIndex(vectors VectorIndex) Option {
	return func(o *Orchestrator) { o.vectors = vectors }
}

// WithRateLimit sets the per-user operation budget.
func WithRateLimit(cfg config.RateLimitConfig) Option {
	return func(o *Orchestrator) { o.rateCfg = cfg }
}

// WithSuggestionTimeout bounds a single synchronous suggestion call.
func WithSuggestionTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.suggestTimeout = d }
}

// NewOrchestrator wires the required collaborators; optional backends come
// in through options.
func NewOrchestrator(
	store MatchStore,
	objects ObjectStore,
	extractor Extractor,
	embedder EmbeddingGenerator,
	scorer SimilarityScorer,
	suggester SuggestionGenerator,
	options ...Option,
) *Orchestrator {
	o := &Orchestrator{
		store:          store,
		objects:        objects,
		extractor:      extractor,
		embedder:       embedder,
		scorer:         scorer,
		suggester:      suggester,
		suggestTimeout: 60 * time.Second,
		userLimiters:   make(map[string]*ratelimit.TokenBucket),
	}
	for _, option := range options {
		option(o)
	}
	return o
}

// allowUserOperation enforces the per-user operation budget. With a
// DedupStore the window lives in Redis and holds across instances;
// otherwise a local token bucket approximates it.
func (o *Orchestrator) allowUserOperation(ctx context.Context, userID string) error {
	if o.rateCfg.UserOpsPerMinute <= 0 {
		return nil
	}

	if o.dedup != nil {
		allowed, err := o.dedup.AllowUserOperation(ctx, userID, o.rateCfg.UserOpsPerMinute, time.Minute)
		if err == nil {
			if !allowed {
				return fmt.Errorf("%w: user %s", ErrRateLimited, userID)
			}
			return nil
		}
		logger.Ctx(ctx).Warn().Err(err).Msg("rate window check failed, using local limiter")
	}

	if bucket := o.userBucket(userID); bucket != nil && !bucket.Allow() {
		return fmt.Errorf("%w: user %s", ErrRateLimited, userID)
	}
	return nil
}

// userBucket returns the per-user limiter, creating it on first use. A zero
// rate config disables limiting.
func (o *Orchestrator) userBucket(userID string) *ratelimit.TokenBucket {
	if o.rateCfg.UserOpsPerMinute <= 0 {
		return nil
	}

	o.limiterMutex.Lock()
	defer o.limiterMutex.Unlock()

	bucket, ok := o.userLimiters[userID]
	if !ok {
		bucket = ratelimit.NewTokenBucket(o.rateCfg.UserOpsPerMinute, o.rateCfg.Burst)
		o.userLimiters[userID] = bucket
	}
	return bucket
}

// RunMatch computes the canonical MatchResult for one (resume, job) pair.
// A pair that already has a non-failed record returns that record without
// recomputation; a failed record is retried in place.
func (o *Orchestrator) RunMatch(ctx context.Context, resumeID, jobID, userID string) (*types.MatchResult, error) {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.RunMatch", trace.WithAttributes(
		attribute.String("resume_id", resumeID),
		attribute.String("job_id", jobID),
	))
	defer span.End()

	log := logger.Ctx(ctx)

	if existing, err := o.store.GetMatchByPair(ctx, resumeID, jobID); err == nil {
		if existing.State != string(types.StateFailed) {
			log.Info().Str("match_id", existing.ID).Str("state", existing.State).Msg("returning existing match for pair")
			return existing.ToMatchResult(), nil
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, fmt.Errorf("pair lookup failed: %w", err)
	}

	if err := o.allowUserOperation(ctx, userID); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	if o.dedup != nil {
		acquired, err := o.dedup.AcquireMatchLock(ctx, resumeID, jobID, matchLockTTL)
		if err != nil {
			log.Warn().Err(err).Msg("pair lock unavailable, proceeding without it")
		} else if !acquired {
			return nil, fmt.Errorf("%w: %s/%s", ErrMatchInProgress, resumeID, jobID)
		} else {
			defer func() {
				if err := o.dedup.ReleaseMatchLock(context.WithoutCancel(ctx), resumeID, jobID); err != nil {
					log.Warn().Err(err).Msg("pair lock release failed")
				}
			}()
		}
	}

	matchID, err := o.ensureMatchRecord(ctx, resumeID, jobID, userID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, err
	}
	span.SetAttributes(attribute.String("match_id", matchID))

	// EXTRACTING
	if err := o.setState(ctx, matchID, types.StateExtracting); err != nil {
		return nil, err
	}
	_, resumeParsed, err := o.loadParsedDocument(ctx, resumeID, types.KindResume)
	if err != nil {
		return nil, o.failMatch(ctx, span, matchID, "extract", resumeID, jobID, err)
	}
	_, jobParsed, err := o.loadParsedDocument(ctx, jobID, types.KindJobDescription)
	if err != nil {
		return nil, o.failMatch(ctx, span, matchID, "extract", resumeID, jobID, err)
	}

	// EMBEDDING
	if err := o.setState(ctx, matchID, types.StateEmbedding); err != nil {
		return nil, err
	}
	resumeEmbeddings, err := o.embedder.GenerateEmbeddings(ctx, resumeParsed)
	if err != nil {
		return nil, o.failMatch(ctx, span, matchID, "embed", resumeID, jobID,
			fmt.Errorf("%w: %v", ErrEmbeddingServiceUnavailable, err))
	}
	jobEmbeddings, err := o.embedder.GenerateEmbeddings(ctx, jobParsed)
	if err != nil {
		return nil, o.failMatch(ctx, span, matchID, "embed", resumeID, jobID,
			fmt.Errorf("%w: %v", ErrEmbeddingServiceUnavailable, err))
	}

	// SCORING
	if err := o.setState(ctx, matchID, types.StateScoring); err != nil {
		return nil, err
	}
	similarity := o.scorer.Compare(resumeEmbeddings, jobEmbeddings)

	result := &types.MatchResult{
		ID:            matchID,
		ResumeID:      resumeID,
		JobID:         jobID,
		UserID:        userID,
		Similarity:    similarity,
		SectionScores: presentationScores(similarity.SectionSimilarities),
	}
	result.Strengths, result.SkillGaps = deriveHighlights(similarity.SectionSimilarities)

	// Scores are persisted even when the caller gave up mid-flight; the
	// expensive work is already done.
	persistCtx := context.WithoutCancel(ctx)
	if err := o.store.SaveMatchScores(persistCtx, matchID, result); err != nil {
		return nil, o.failMatch(ctx, span, matchID, "score", resumeID, jobID, err)
	}

	log.Info().
		Str("match_id", matchID).
		Float64("overall_similarity", similarity.OverallSimilarity).
		Float64("confidence", similarity.ConfidenceScore).
		Msg("match scored")

	// SUGGESTING, queued or inline. Failures here never fail the match.
	o.runSuggestionStage(persistCtx, matchID, resumeID, jobID, userID, resumeParsed, jobParsed, similarity)

	record, err := o.store.GetMatchByID(persistCtx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload match %s: %w", matchID, err)
	}
	return record.ToMatchResult(), nil
}

// ensureMatchRecord creates the PENDING row, falling back to the existing
// row when a concurrent run won the unique-index race. A failed prior run is
// reset for retry.
func (o *Orchestrator) ensureMatchRecord(ctx context.Context, resumeID, jobID, userID string) (string, error) {
	record := &models.MatchRecord{
		ID:       uuid.New().String(),
		ResumeID: resumeID,
		JobID:    jobID,
		UserID:   userID,
		State:    string(types.StatePending),
	}
	if err := o.store.CreateMatchRecord(ctx, record); err == nil {
		return record.ID, nil
	}

	existing, err := o.store.GetMatchByPair(ctx, resumeID, jobID)
	if err != nil {
		return "", fmt.Errorf("failed to create match record for %s/%s: %w", resumeID, jobID, err)
	}
	if existing.State == string(types.StateFailed) {
		if err := o.store.UpdateMatchState(ctx, existing.ID, types.StatePending, nil); err != nil {
			return "", err
		}
	}
	return existing.ID, nil
}

func (o *Orchestrator) setState(ctx context.Context, matchID string, state types.PipelineState) error {
	if err := o.store.UpdateMatchState(ctx, matchID, state, nil); err != nil {
		return fmt.Errorf("failed to advance match %s to %s: %w", matchID, state, err)
	}
	return nil
}

// failMatch records the FAILED terminal state with the error message and
// returns the stage-tagged error.
func (o *Orchestrator) failMatch(ctx context.Context, span trace.Span, matchID, op, resumeID, jobID string, cause error) error {
	matchErr := NewMatchError(op, resumeID, jobID, cause)
	tracing.RecordError(span, matchErr, errorTypeForStage(op))

	if err := o.store.UpdateMatchState(context.WithoutCancel(ctx), matchID, types.StateFailed, utils.StringPtr(cause.Error())); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("match_id", matchID).Msg("failed to record FAILED state")
	}
	return matchErr
}

func errorTypeForStage(op string) tracing.ErrorType {
	switch op {
	case "extract":
		return tracing.ErrorTypeExtraction
	case "embed":
		return tracing.ErrorTypeEmbedding
	case "suggest":
		return tracing.ErrorTypeLLM
	default:
		return tracing.ErrorTypeInternal
	}
}

// runSuggestionStage either queues the suggestion task or runs it inline.
// Either way the match reaches a terminal or SUGGESTING state; an LLM
// failure completes the match with an empty suggestion list.
func (o *Orchestrator) runSuggestionStage(
	ctx context.Context,
	matchID, resumeID, jobID, userID string,
	resumeParsed, jobParsed *types.ParsedDocument,
	similarity *types.SimilarityResult,
) {
	log := logger.Ctx(ctx)

	if o.queue != nil {
		task := &storage.SuggestionTaskMessage{
			MatchID:  matchID,
			ResumeID: resumeID,
			JobID:    jobID,
			UserID:   userID,
		}
		if err := o.queue.PublishSuggestionTask(ctx, task); err == nil {
			if err := o.store.UpdateMatchState(ctx, matchID, types.StateSuggesting, nil); err != nil {
				log.Warn().Err(err).Str("match_id", matchID).Msg("failed to mark match SUGGESTING")
			}
			return
		} else {
			log.Warn().Err(err).Str("match_id", matchID).Msg("suggestion task publish failed, generating inline")
		}
	}

	suggestions := o.generateSuggestions(ctx, matchID, resumeParsed.TextContent, jobParsed.TextContent, similarity)
	o.completeWithSuggestions(ctx, matchID, suggestions)
}

// generateSuggestions calls the LLM with a bounded timeout. Errors yield an
// empty list.
func (o *Orchestrator) generateSuggestions(ctx context.Context, matchID, resumeText, jobText string, similarity *types.SimilarityResult) []types.Suggestion {
	suggestCtx, cancel := context.WithTimeout(ctx, o.suggestTimeout)
	defer cancel()

	suggestions, err := o.suggester.Generate(suggestCtx, resumeText, jobText, similarity)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("match_id", matchID).Msg("suggestion generation failed, completing without suggestions")
		return nil
	}
	return suggestions
}

func (o *Orchestrator) completeWithSuggestions(ctx context.Context, matchID string, suggestions []types.Suggestion) {
	log := logger.Ctx(ctx)

	if len(suggestions) > 0 {
		if err := o.store.AppendSuggestions(ctx, matchID, suggestions); err != nil {
			log.Error().Err(err).Str("match_id", matchID).Msg("failed to persist suggestions")
			suggestions = nil
		}
	}
	if err := o.store.UpdateMatchState(ctx, matchID, types.StateComplete, nil); err != nil {
		log.Error().Err(err).Str("match_id", matchID).Msg("failed to mark match COMPLETE")
		return
	}
	log.Info().Str("match_id", matchID).Int("suggestion_count", len(suggestions)).Msg("match complete")
}

// HandleSuggestionTask is the queue consumer handler. The returned bool is
// the ack decision: true acks, false requeues.
func (o *Orchestrator) HandleSuggestionTask(body []byte) bool {
	ctx, span := pipelineTracer.Start(context.Background(), "pipeline.HandleSuggestionTask")
	defer span.End()

	var task storage.SuggestionTaskMessage
	if err := json.Unmarshal(body, &task); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("dropping malformed suggestion task")
		return true
	}
	span.SetAttributes(attribute.String("match_id", task.MatchID), attribute.Int("attempt", task.Attempt))
	log := logger.Ctx(ctx)

	record, err := o.store.GetMatchByID(ctx, task.MatchID)
	if err != nil {
		log.Error().Err(err).Str("match_id", task.MatchID).Msg("suggestion task references unknown match, dropping")
		return true
	}
	if record.State == string(types.StateComplete) || record.State == string(types.StateFailed) {
		// Redelivery after the match already settled.
		return true
	}

	_, resumeParsed, err := o.loadParsedDocument(ctx, task.ResumeID, types.KindResume)
	if err != nil {
		log.Error().Err(err).Str("match_id", task.MatchID).Msg("resume unavailable for suggestion task")
		o.completeWithSuggestions(ctx, task.MatchID, nil)
		return true
	}
	_, jobParsed, err := o.loadParsedDocument(ctx, task.JobID, types.KindJobDescription)
	if err != nil {
		log.Error().Err(err).Str("match_id", task.MatchID).Msg("job unavailable for suggestion task")
		o.completeWithSuggestions(ctx, task.MatchID, nil)
		return true
	}

	similarity := record.ToMatchResult().Similarity

	suggestCtx, cancel := context.WithTimeout(ctx, o.suggestTimeout)
	suggestions, err := o.suggester.Generate(suggestCtx, resumeParsed.TextContent, jobParsed.TextContent, similarity)
	cancel()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		if o.queue != nil && task.Attempt+1 < maxSuggestionTaskAttempts {
			retry := task
			retry.Attempt++
			if pubErr := o.queue.PublishSuggestionTask(ctx, &retry); pubErr == nil {
				log.Warn().Err(err).Str("match_id", task.MatchID).Int("attempt", retry.Attempt).Msg("suggestion generation failed, requeued")
				return true
			}
		}
		log.Warn().Err(err).Str("match_id", task.MatchID).Msg("suggestion generation exhausted retries, completing without suggestions")
		o.completeWithSuggestions(ctx, task.MatchID, nil)
		return true
	}

	o.completeWithSuggestions(ctx, task.MatchID, suggestions)
	return true
}

// GetMatch returns the stored result for a match id.
func (o *Orchestrator) GetMatch(ctx context.Context, matchID string) (*types.MatchResult, error) {
	record, err := o.store.GetMatchByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
		}
		return nil, err
	}
	return record.ToMatchResult(), nil
}

// ResolveSuggestion applies a user decision to a pending suggestion.
func (o *Orchestrator) ResolveSuggestion(ctx context.Context, suggestionID string, status types.SuggestionStatus) error {
	if status != types.SuggestionImplemented && status != types.SuggestionRejected {
		return fmt.Errorf("invalid suggestion status %q", status)
	}
	return o.store.UpdateSuggestionStatus(ctx, suggestionID, status)
}

// RankJobs returns the indexed jobs most similar to a resume, best first.
func (o *Orchestrator) RankJobs(ctx context.Context, resumeID string, limit int) ([]types.RankedJob, error) {
	if o.vectors == nil {
		return nil, errors.New("vector index not configured")
	}

	ctx, span := pipelineTracer.Start(ctx, "pipeline.RankJobs", trace.WithAttributes(
		attribute.String("resume_id", resumeID),
	))
	defer span.End()

	_, parsed, err := o.loadParsedDocument(ctx, resumeID, types.KindResume)
	if err != nil {
		return nil, err
	}
	embeddings, err := o.embedder.GenerateEmbeddings(ctx, parsed)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingServiceUnavailable, err)
	}
	query, ok := embeddings.Get(types.EmbeddingFullText)
	if !ok {
		return nil, fmt.Errorf("resume %s has no full-text vector", resumeID)
	}

	hits, err := o.vectors.SearchSimilarJobs(ctx, query, limit)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, fmt.Errorf("job search failed: %w", err)
	}

	ranked := make([]types.RankedJob, 0, len(hits))
	for _, hit := range hits {
		if hit.JobID == resumeID {
			continue
		}
		ranked = append(ranked, types.RankedJob{JobID: hit.JobID, Similarity: hit.Score})
	}
	return ranked, nil
}

// presentationScores scales section similarities to 0-100 for display,
// flooring negative cosines at zero.
func presentationScores(sectionSimilarities map[string]float64) map[string]float64 {
	scores := make(map[string]float64, len(sectionSimilarities))
	for category, similarity := range sectionSimilarities {
		if similarity < 0 {
			similarity = 0
		}
		scores[category] = similarity * 100
	}
	return scores
}

// deriveHighlights splits section categories into strengths and gaps by
// similarity thresholds, in deterministic order. The full-text category is
// an aggregate, not a section, so it stays out of both lists.
func deriveHighlights(sectionSimilarities map[string]float64) (strengths, gaps []string) {
	categories := make([]string, 0, len(sectionSimilarities))
	for category := range sectionSimilarities {
		if category == types.EmbeddingFullText {
			continue
		}
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		score := sectionSimilarities[category]
		switch {
		case score >= strengthThreshold:
			strengths = append(strengths, category)
		case score <= gapThreshold:
			gaps = append(gaps, category)
		}
	}
	return strengths, gaps
}
