package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	"resume-match-go/internal/similarity"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/storage/models"
	"resume-match-go/internal/types"
)

// fakeStore is an in-memory MatchStore that records state transitions.
type fakeStore struct {
	mu        sync.Mutex
	documents map[string]*models.Document
	matches   map[string]*models.MatchRecord
	states    []types.PipelineState
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		documents: make(map[string]*models.Document),
		matches:   make(map[string]*models.MatchRecord),
	}
}

func (s *fakeStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = doc
	return nil
}

func (s *fakeStore) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *doc
	return &copied, nil
}

func (s *fakeStore) GetDocumentByMD5(ctx context.Context, userID, contentMD5 string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.documents {
		if doc.UserID == userID && doc.ContentMD5 == contentMD5 {
			copied := *doc
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) UpdateDocumentExtraction(ctx context.Context, id string, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v, ok := updates["status"].(string); ok {
		doc.Status = v
	}
	if v, ok := updates["parsed_text_path"].(string); ok {
		doc.ParsedTextPath = v
	}
	if v, ok := updates["quality_score"].(float64); ok {
		doc.QualityScore = v
	}
	return nil
}

func (s *fakeStore) CreateMatchRecord(ctx context.Context, record *models.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.matches {
		if existing.ResumeID == record.ResumeID && existing.JobID == record.JobID {
			return errors.New("Duplicate entry for key 'idx_resume_job'")
		}
	}
	s.matches[record.ID] = record
	return nil
}

func (s *fakeStore) GetMatchByPair(ctx context.Context, resumeID, jobID string) (*models.MatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.matches {
		if record.ResumeID == resumeID && record.JobID == jobID {
			copied := *record
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) GetMatchByID(ctx context.Context, id string) (*models.MatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.matches[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *fakeStore) UpdateMatchState(ctx context.Context, id string, state types.PipelineState, errorMessage *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.matches[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	record.State = string(state)
	record.ErrorMessage = errorMessage
	s.states = append(s.states, state)
	return nil
}

func (s *fakeStore) SaveMatchScores(ctx context.Context, id string, result *types.MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.matches[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	record.OverallSimilarity = result.Similarity.OverallSimilarity
	record.KeywordSimilarity = result.Similarity.KeywordSimilarity
	record.ConfidenceScore = result.Similarity.ConfidenceScore
	record.SectionSimilarities, _ = json.Marshal(result.Similarity.SectionSimilarities)
	record.SectionScores, _ = json.Marshal(result.SectionScores)
	record.Strengths, _ = json.Marshal(result.Strengths)
	record.SkillGaps, _ = json.Marshal(result.SkillGaps)
	return nil
}

func (s *fakeStore) AppendSuggestions(ctx context.Context, matchID string, suggestions []types.Suggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.matches[matchID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i, suggestion := range suggestions {
		if suggestion.ID == "" {
			suggestion.ID = fmt.Sprintf("sugg-%d", i)
		}
		record.Suggestions = append(record.Suggestions, models.FromSuggestion(matchID, suggestion))
	}
	return nil
}

func (s *fakeStore) UpdateSuggestionStatus(ctx context.Context, suggestionID string, status types.SuggestionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.matches {
		for i := range record.Suggestions {
			if record.Suggestions[i].ID == suggestionID {
				if record.Suggestions[i].Status != string(types.SuggestionPending) {
					return errors.New("suggestion is not pending")
				}
				record.Suggestions[i].Status = string(status)
				return nil
			}
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *fakeStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(s.documents, id)
	return nil
}

func (s *fakeStore) stateLog() []types.PipelineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.PipelineState(nil), s.states...)
}

// fakeObjects keeps object bodies in memory.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) UploadOriginal(ctx context.Context, documentID, fileType string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := documentID + "." + fileType
	f.objects[key] = data
	return key, nil
}

func (f *fakeObjects) GetOriginal(ctx context.Context, objectName string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[objectName]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (f *fakeObjects) UploadParsedText(ctx context.Context, documentID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := documentID + ".txt"
	f.objects[key] = []byte(text)
	return key, nil
}

func (f *fakeObjects) GetParsedText(ctx context.Context, objectName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[objectName]
	if !ok {
		return "", errors.New("object not found")
	}
	return string(data), nil
}

func (f *fakeObjects) DeleteOriginal(ctx context.Context, objectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objectName)
	return nil
}

// fakeExtractor returns a canned ParsedDocument per kind.
type fakeExtractor struct {
	err   error
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, raw []byte, fileType string, kind types.DocumentKind) (*types.ParsedDocument, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &types.ParsedDocument{
		TextContent: "texto extraído para " + string(kind),
		Sections: map[string]string{
			types.SectionSkills: "Go MySQL Redis",
		},
		QualityScore: 80,
		Metadata:     map[string]interface{}{"document_kind": string(kind)},
	}, nil
}

// fakeEmbedder returns identical fixed vectors for every document, so the
// real similarity engine scores the pair at 1.0.
type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) GenerateEmbeddings(ctx context.Context, doc *types.ParsedDocument) (*types.EmbeddingSet, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &types.EmbeddingSet{
		ModelVersion: "fake-v1",
		Vectors: map[string][]float64{
			types.EmbeddingFullText:                              {1, 0},
			types.EmbeddingSummary:                               {1, 0},
			types.SectionEmbeddingKey(types.SectionSkills):       {1, 0},
			types.SectionEmbeddingKey(types.SectionRequirements): {1, 0},
		},
	}, nil
}

// fakeSuggester returns canned suggestions or an error.
type fakeSuggester struct {
	suggestions []types.Suggestion
	err         error
	calls       int
}

func (f *fakeSuggester) Generate(ctx context.Context, resumeText, jobText string, scores *types.SimilarityResult) ([]types.Suggestion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.suggestions, nil
}

// fakeQueue records published tasks.
type fakeQueue struct {
	mu    sync.Mutex
	tasks []*storage.SuggestionTaskMessage
	err   error
}

func (f *fakeQueue) PublishSuggestionTask(ctx context.Context, task *storage.SuggestionTaskMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	copied := *task
	f.tasks = append(f.tasks, &copied)
	return nil
}

// fakeVectors is an in-memory VectorIndex.
type fakeVectors struct {
	mu      sync.Mutex
	vectors map[string][]float64
	hits    []storage.JobSearchResult
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{vectors: make(map[string][]float64)}
}

func (f *fakeVectors) UpsertJobVector(ctx context.Context, jobID string, vector []float64, payload map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[jobID] = vector
	return nil
}

func (f *fakeVectors) SearchSimilarJobs(ctx context.Context, queryVector []float64, limit int) ([]storage.JobSearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > 0 && len(f.hits) > limit {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

func (f *fakeVectors) DeleteJobVector(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.vectors, jobID)
	return nil
}

type testFixture struct {
	store     *fakeStore
	objects   *fakeObjects
	extractor *fakeExtractor
	embedder  *fakeEmbedder
	suggester *fakeSuggester
}

func newFixture() *testFixture {
	return &testFixture{
		store:     newFakeStore(),
		objects:   newFakeObjects(),
		extractor: &fakeExtractor{},
		embedder:  &fakeEmbedder{},
		suggester: &fakeSuggester{suggestions: []types.Suggestion{
			{Type: types.SuggestionKeyword, Priority: 1, Description: "Adicionar Kubernetes", Status: types.SuggestionPending},
			{Type: types.SuggestionContent, Priority: 2, Description: "Quantificar resultados", Status: types.SuggestionPending},
		}},
	}
}

func (f *testFixture) orchestrator(options ...Option) *Orchestrator {
	return NewOrchestrator(f.store, f.objects, f.extractor, f.embedder,
		similarity.NewEngine(nil), f.suggester, options...)
}

func (f *testFixture) addDocument(id string, kind types.DocumentKind) {
	f.store.documents[id] = &models.Document{
		ID:           id,
		UserID:       "user-1",
		Kind:         string(kind),
		FileType:     constants.FileTypePDF,
		OriginalPath: id + ".pdf",
		Status:       constants.DocStatusExtracted,
	}
	f.objects.objects[id+".pdf"] = []byte("%PDF-1.7 raw")
}

func TestRunMatchHappyPath(t *testing.T) {
	f := newFixture()
	f.addDocument("resume-1", types.KindResume)
	f.addDocument("job-1", types.KindJobDescription)

	result, err := f.orchestrator().RunMatch(context.Background(), "resume-1", "job-1", "user-1")
	require.NoError(t, err)

	assert.Equal(t, types.StateComplete, result.State)
	assert.InDelta(t, 1.0, result.Similarity.OverallSimilarity, 1e-9)
	assert.Len(t, result.Suggestions, 2)

	assert.Equal(t, []types.PipelineState{
		types.StateExtracting,
		types.StateEmbedding,
		types.StateScoring,
		types.StateComplete,
	}, f.store.stateLog())
}

func TestRunMatchIdempotent(t *testing.T) {
	f := newFixture()
	f.addDocument("resume-1", types.KindResume)
	f.addDocument("job-1", types.KindJobDescription)
	o := f.orchestrator()

	first, err := o.RunMatch(context.Background(), "resume-1", "job-1", "user-1")
	require.NoError(t, err)

	second, err := o.RunMatch(context.Background(), "resume-1", "job-1", "user-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	// The second call returned the stored record without recomputing.
	assert.Equal(t, 1, f.suggester.calls)
	assert.Equal(t, 2, f.extractor.calls)
}

func TestRunMatchSuggestionFailureIsNonFatal(t *testing.T) {
	f := newFixture()
	f.addDocument("resume-1", types.KindResume)
	f.addDocument("job-1", types.KindJobDescription)
	f.suggester.err = errors.New("status 503")

	result, err := f.orchestrator().RunMatch(context.Background(), "resume-1", "job-1", "user-1")
	require.NoError(t, err)

	assert.Equal(t, types.StateComplete, result.State)
	assert.Empty(t, result.Suggestions)
	assert.InDelta(t, 1.0, result.Similarity.OverallSimilarity, 1e-9)
}

func TestRunMatchExtractionFailure(t *testing.T) {
	f := newFixture()
	f.addDocument("resume-1", types.KindResume)
	f.addDocument("job-1", types.KindJobDescription)
	f.extractor.err = errors.New("encrypted file")

	_, err := f.orchestrator().RunMatch(context.Background(), "resume-1", "job-1", "user-1")
	require.Error(t, err)

	record, getErr := f.store.GetMatchByPair(context.Background(), "resume-1", "job-1")
	require.NoError(t, getErr)
	assert.Equal(t, string(types.StateFailed), record.State)
	require.NotNil(t, record.ErrorMessage)
	assert.Contains(t, *record.ErrorMessage, "encrypted file")
}

func TestRunMatchEmbeddingFailure(t *testing.T) {
	f := newFixture()
	f.addDocument("resume-1", types.KindResume)
	f.addDocument("job-1", types.KindJobDescription)
	f.embedder.err = errors.New("connection refused")

	_, err := f.orchestrator().RunMatch(context.Background(), "resume-1", "job-1", "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingServiceUnavailable)

	record, getErr := f.store.GetMatchByPair(context.Background(), "resume-1", "job-1")
	require.NoError(t, getErr)
	assert.Equal(t, string(types.StateFailed), record.State)
}

func TestRunMatchFailedPairIsRetried(t *testing.T) {
	f := newFixture()
	f.addDocument("resume-1", types.KindResume)
	f.addDocument("job-1", types.KindJobDescription)
	o := f.orchestrator()

	f.extractor.err = errors.New("transient parser crash")
	_, err := o.RunMatch(context.Background(), "resume-1", "job-1", "user-1")
	require.Error(t, err)

	f.extractor.err = nil
	result, err := o.RunMatch(context.Background(), "resume-1", "job-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, types.StateComplete, result.State)
}

func TestRunMatchUnknownDocument(t *testing.T) {
	f := newFixture()
	f.addDocument("resume-1", types.KindResume)

	_, err := f.orchestrator().RunMatch(context.Background(), "resume-1", "missing-job", "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestRunMatchKindMismatch(t *testing.T) {
	f := newFixture()
	f.addDocument("resume-1", types.KindResume)
	f.addDocument("resume-2", types.KindResume)

	_, err := f.orchestrator().RunMatch(context.Background(), "resume-1", "resume-2", "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected job_description")
}

func TestRunMatchRateLimited(t *testing.T) {
	f := newFixture()
	f.addDocument("resume-1", types.KindResume)
	f.addDocument("job-1", types.KindJobDescription)
	f.addDocument("job-2", types.KindJobDescription)

	o := f.orchestrator(WithRateLimit(config.RateLimitConfig{UserOpsPerMinute: 1, Burst: 1}))

	_, err := o.RunMatch(context.Background(), "resume-1", "job-1", "user-1")
	require.NoError(t, err)

	_, err = o.RunMatch(context.Background(), "resume-1", "job-2", "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestRunMatchQueuedSuggestions(t *testing.T) {
	f := newFixture()
	f.addDocument("resume-1", types.KindResume)
	f.addDocument("job-1", types.KindJobDescription)
	queue := &fakeQueue{}
	o := f.orchestrator(WithTaskQueue(queue))

	result, err := o.RunMatch(context.Background(), "resume-1", "job-1", "user-1")
	require.NoError(t, err)

	// The synchronous path ends at SUGGESTING; scores are already final.
	assert.Equal(t, types.StateSuggesting, result.State)
	assert.Empty(t, result.Suggestions)
	assert.InDelta(t, 1.0, result.Similarity.OverallSimilarity, 1e-9)
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, result.ID, queue.tasks[0].MatchID)

	// The consumer picks up the task and completes the match.
	body, _ := json.Marshal(queue.tasks[0])
	acked := o.HandleSuggestionTask(body)
	assert.True(t, acked)

	completed, err := o.GetMatch(context.Background(), result.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateComplete, completed.State)
	assert.Len(t, completed.Suggestions, 2)
}

func TestHandleSuggestionTaskRequeuesThenGivesUp(t *testing.T) {
	f := newFixture()
	f.addDocument("resume-1", types.KindResume)
	f.addDocument("job-1", types.KindJobDescription)
	f.suggester.err = errors.New("status 503")
	queue := &fakeQueue{}
	o := f.orchestrator(WithTaskQueue(queue))

	result, err := o.RunMatch(context.Background(), "resume-1", "job-1", "user-1")
	require.NoError(t, err)
	require.Len(t, queue.tasks, 1)

	// Each failed attempt republishes with an incremented counter until the
	// bound, then the match completes with no suggestions.
	for i := 0; i < maxSuggestionTaskAttempts; i++ {
		last := queue.tasks[len(queue.tasks)-1]
		body, _ := json.Marshal(last)
		assert.True(t, o.HandleSuggestionTask(body))
	}

	completed, err := o.GetMatch(context.Background(), result.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateComplete, completed.State)
	assert.Empty(t, completed.Suggestions)
}

func TestHandleSuggestionTaskMalformedBody(t *testing.T) {
	f := newFixture()
	o := f.orchestrator()

	assert.True(t, o.HandleSuggestionTask([]byte("not json")))
}

func TestGetMatchNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.orchestrator().GetMatch(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestResolveSuggestion(t *testing.T) {
	f := newFixture()
	f.addDocument("resume-1", types.KindResume)
	f.addDocument("job-1", types.KindJobDescription)
	o := f.orchestrator()

	result, err := o.RunMatch(context.Background(), "resume-1", "job-1", "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, result.Suggestions)

	suggestionID := result.Suggestions[0].ID
	require.NoError(t, o.ResolveSuggestion(context.Background(), suggestionID, types.SuggestionImplemented))

	// Only pending suggestions accept a decision.
	err = o.ResolveSuggestion(context.Background(), suggestionID, types.SuggestionRejected)
	assert.Error(t, err)

	// Pending is not a valid target status.
	err = o.ResolveSuggestion(context.Background(), suggestionID, types.SuggestionPending)
	assert.Error(t, err)
}

func TestIngestDocument(t *testing.T) {
	f := newFixture()
	o := f.orchestrator()

	doc, err := o.IngestDocument(context.Background(), IngestParams{
		UserID:   "user-1",
		FileName: "curriculo.pdf",
		FileType: constants.FileTypePDF,
		Kind:     types.KindResume,
		Raw:      []byte("%PDF-1.7 conteudo"),
	})
	require.NoError(t, err)

	assert.Equal(t, constants.DocStatusExtracted, doc.Status)
	assert.Equal(t, 80.0, doc.QualityScore)
	assert.NotEmpty(t, doc.ParsedTextPath)

	// Same bytes again: the existing document comes back, nothing re-runs.
	extractCalls := f.extractor.calls
	dup, err := o.IngestDocument(context.Background(), IngestParams{
		UserID:   "user-1",
		FileName: "copia.pdf",
		FileType: constants.FileTypePDF,
		Kind:     types.KindResume,
		Raw:      []byte("%PDF-1.7 conteudo"),
	})
	require.NoError(t, err)
	assert.Equal(t, doc.ID, dup.ID)
	assert.Equal(t, extractCalls, f.extractor.calls)
}

func TestIngestDocumentValidation(t *testing.T) {
	f := newFixture()
	o := f.orchestrator()

	_, err := o.IngestDocument(context.Background(), IngestParams{Kind: "invalid", Raw: []byte("x")})
	assert.Error(t, err)

	_, err = o.IngestDocument(context.Background(), IngestParams{Kind: types.KindResume})
	assert.Error(t, err)
}

func TestIngestJobIndexesVector(t *testing.T) {
	f := newFixture()
	vectors := newFakeVectors()
	o := f.orchestrator(WithVectorIndex(vectors))

	doc, err := o.IngestDocument(context.Background(), IngestParams{
		UserID:   "user-1",
		FileName: "vaga.pdf",
		FileType: constants.FileTypePDF,
		Kind:     types.KindJobDescription,
		Raw:      []byte("%PDF-1.7 vaga"),
	})
	require.NoError(t, err)

	assert.Contains(t, vectors.vectors, doc.ID)
}

func TestIngestExtractionFailureRemovesOriginal(t *testing.T) {
	f := newFixture()
	f.extractor.err = errors.New("encrypted file")
	o := f.orchestrator()

	_, err := o.IngestDocument(context.Background(), IngestParams{
		UserID:   "user-1",
		FileName: "curriculo.pdf",
		FileType: constants.FileTypePDF,
		Kind:     types.KindResume,
		Raw:      []byte("%PDF-1.7 cifrado"),
	})
	require.Error(t, err)

	// The rejected upload keeps its failed row but not its bytes.
	assert.Empty(t, f.objects.objects)
	for _, doc := range f.store.documents {
		assert.Equal(t, constants.DocStatusFailed, doc.Status)
	}
}

func TestDeleteDocument(t *testing.T) {
	f := newFixture()
	vectors := newFakeVectors()
	o := f.orchestrator(WithVectorIndex(vectors))

	doc, err := o.IngestDocument(context.Background(), IngestParams{
		UserID:   "user-1",
		FileName: "vaga.pdf",
		FileType: constants.FileTypePDF,
		Kind:     types.KindJobDescription,
		Raw:      []byte("%PDF-1.7 vaga"),
	})
	require.NoError(t, err)
	require.Contains(t, vectors.vectors, doc.ID)

	require.NoError(t, o.DeleteDocument(context.Background(), doc.ID))

	_, err = f.store.GetDocumentByID(context.Background(), doc.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NotContains(t, vectors.vectors, doc.ID)
	assert.NotContains(t, f.objects.objects, doc.OriginalPath)

	err = o.DeleteDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestRankJobs(t *testing.T) {
	f := newFixture()
	f.addDocument("resume-1", types.KindResume)
	vectors := newFakeVectors()
	vectors.hits = []storage.JobSearchResult{
		{JobID: "job-a", Score: 0.9},
		{JobID: "job-b", Score: 0.7},
	}
	o := f.orchestrator(WithVectorIndex(vectors))

	ranked, err := o.RankJobs(context.Background(), "resume-1", 5)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "job-a", ranked[0].JobID)
	assert.InDelta(t, 0.9, ranked[0].Similarity, 1e-9)
}

func TestRankJobsWithoutIndex(t *testing.T) {
	f := newFixture()

	_, err := f.orchestrator().RankJobs(context.Background(), "resume-1", 5)
	assert.Error(t, err)
}

func TestDeriveHighlights(t *testing.T) {
	strengths, gaps := deriveHighlights(map[string]float64{
		"full_text":  0.9,
		"skills":     0.8,
		"experience": 0.3,
		"education":  0.5,
	})

	assert.Equal(t, []string{"skills"}, strengths)
	assert.Equal(t, []string{"experience"}, gaps)
}

func TestPresentationScores(t *testing.T) {
	scores := presentationScores(map[string]float64{
		"skills":    0.75,
		"education": -0.2,
	})

	assert.InDelta(t, 75.0, scores["skills"], 1e-9)
	assert.Zero(t, scores["education"])
}

func TestRunMatchPairLock(t *testing.T) {
	f := newFixture()
	f.addDocument("resume-1", types.KindResume)
	f.addDocument("job-1", types.KindJobDescription)
	o := f.orchestrator(WithDedupStore(&lockedDedup{}))

	_, err := o.RunMatch(context.Background(), "resume-1", "job-1", "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMatchInProgress)
}

// lockedDedup simulates another instance holding the pair lock.
type lockedDedup struct{}

func (l *lockedDedup) CheckAndRecordUpload(ctx context.Context, contentMD5 string) (bool, error) {
	return true, nil
}

func (l *lockedDedup) AcquireMatchLock(ctx context.Context, resumeID, jobID string, ttl time.Duration) (bool, error) {
	return false, nil
}

func (l *lockedDedup) ReleaseMatchLock(ctx context.Context, resumeID, jobID string) error {
	return nil
}

func (l *lockedDedup) AllowUserOperation(ctx context.Context, userID string, limit int, window time.Duration) (bool, error) {
	return true, nil
}
