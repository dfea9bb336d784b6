package similarity

import (
	"math"
	"sort"

	"resume-match-go/internal/config"
	"resume-match-go/internal/types"
)

// categoryKeys maps a weighted category to the embedding labels carrying it
// on each side. Resume and job documents section differently, so the job
// side aliases onto the nearest equivalent: a job posting's requirements
// block is where skills and education demands live, and its
// responsibilities block describes the experience sought.
type categoryKeys struct {
	category string
	resume   []string
	job      []string
}

var weightedCategories = []categoryKeys{
	{
		category: types.EmbeddingFullText,
		resume:   []string{types.EmbeddingFullText},
		job:      []string{types.EmbeddingFullText},
	},
	{
		category: types.SectionSkills,
		resume:   []string{types.SectionEmbeddingKey(types.SectionSkills)},
		job: []string{
			types.SectionEmbeddingKey(types.SectionSkills),
			types.SectionEmbeddingKey(types.SectionRequirements),
		},
	},
	{
		category: types.SectionExperience,
		resume:   []string{types.SectionEmbeddingKey(types.SectionExperience)},
		job: []string{
			types.SectionEmbeddingKey(types.SectionExperience),
			types.SectionEmbeddingKey(types.SectionResponsibilities),
		},
	},
	{
		category: types.SectionEducation,
		resume:   []string{types.SectionEmbeddingKey(types.SectionEducation)},
		job: []string{
			types.SectionEmbeddingKey(types.SectionEducation),
			types.SectionEmbeddingKey(types.SectionRequirements),
		},
	},
}

// Engine computes weighted similarity between a resume's and a job's
// embedding sets. Pure computation, deterministic for identical inputs.
type Engine struct {
	weights map[string]float64
}

// NewEngine creates an Engine with the given per-category weight table.
// Nil or empty weights fall back to the default table.
func NewEngine(weights map[string]float64) *Engine {
	if len(weights) == 0 {
		weights = config.DefaultWeights()
	}
	return &Engine{weights: weights}
}

// Cosine is dot(a,b) / (norm(a)*norm(b)). Zero-norm or mismatched-length
// inputs yield 0.0, never NaN and never a panic.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// firstVector returns the first label from keys present in the set.
func firstVector(set *types.EmbeddingSet, keys []string) ([]float64, bool) {
	for _, key := range keys {
		if vector, ok := set.Get(key); ok {
			return vector, true
		}
	}
	return nil, false
}

// Compare scores one resume against one job description. Overall similarity
// is the weighted mean over categories present on both sides, with weights
// renormalized to the categories actually used. No overlap at all yields
// 0.0 overall and a floor confidence.
func (e *Engine) Compare(resume, job *types.EmbeddingSet) *types.SimilarityResult {
	result := &types.SimilarityResult{
		SectionSimilarities: make(map[string]float64),
	}
	if resume == nil || job == nil {
		result.ConfidenceScore = 0.1
		return result
	}

	var weightedSum, totalWeight float64
	var sectionScores []float64

	for _, ck := range weightedCategories {
		resumeVec, okResume := firstVector(resume, ck.resume)
		jobVec, okJob := firstVector(job, ck.job)
		if !okResume || !okJob {
			continue
		}

		score := Cosine(resumeVec, jobVec)
		result.SectionSimilarities[ck.category] = score
		sectionScores = append(sectionScores, score)

		weight := e.weights[ck.category]
		weightedSum += weight * score
		totalWeight += weight
	}

	if totalWeight > 0 {
		result.OverallSimilarity = weightedSum / totalWeight
	}

	if resumeSummary, ok := resume.Get(types.EmbeddingSummary); ok {
		if jobSummary, ok := job.Get(types.EmbeddingSummary); ok {
			result.KeywordSimilarity = Cosine(resumeSummary, jobSummary)
		}
	}

	result.ConfidenceScore = confidence(sectionScores)
	return result
}

// confidence starts at 0.5, rises with the number of overlapping categories
// and falls with disagreement between their scores. Clamped to [0.1, 1.0].
func confidence(sectionScores []float64) float64 {
	matched := float64(len(sectionScores))

	score := 0.5
	score += math.Min(matched/4.0, 0.3)
	score -= math.Min(variance(sectionScores)*0.5, 0.2)

	if matched == 0 {
		// No shared categories at all: nothing to trust.
		return 0.1
	}
	if score < 0.1 {
		return 0.1
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}

func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0.0
	}

	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var sum float64
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	return sum / float64(len(values))
}

// JobCandidate pairs a job id with its embedding set for ranking.
type JobCandidate struct {
	JobID      string
	Embeddings *types.EmbeddingSet
}

// FindBestMatches ranks candidate jobs against one resume by overall
// similarity, descending, and returns the top n. The sort is stable so ties
// keep the input order.
func (e *Engine) FindBestMatches(resume *types.EmbeddingSet, candidates []JobCandidate, n int) []types.RankedJob {
	ranked := make([]types.RankedJob, 0, len(candidates))
	for _, candidate := range candidates {
		result := e.Compare(resume, candidate.Embeddings)
		ranked = append(ranked, types.RankedJob{
			JobID:      candidate.JobID,
			Similarity: result.OverallSimilarity,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})

	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
