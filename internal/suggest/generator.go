package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"resume-match-go/internal/constants"
	"resume-match-go/internal/logger"
	"resume-match-go/internal/types"
	"resume-match-go/pkg/ratelimit"
)

// ErrLLMService marks suggestion-provider failures. Callers treat it as a
// soft failure: a match result is valid with an empty suggestions list.
var ErrLLMService = errors.New("llm service error")

const systemPrompt = `You are a professional resume writer specialized in optimizing resumes for applicant tracking systems.
Given a resume, a job description and the computed similarity scores, produce concrete improvement suggestions.
Each suggestion must name the specific text change to make, the reasoning behind it, a priority and an estimated score impact.
Respond with a single JSON object of the form:
{"suggestions": [{"type": "keyword|experience|skills|format|content", "priority": 1, "impact_score": 5.0, "effort_estimate": "low|medium|high", "description": "..."}]}
Return between 5 and 7 suggestions, highest priority first. Do not include any text outside the JSON object.`

// promptTextLimit bounds how much of each document goes into the prompt.
const promptTextLimit = 6000

// Generator produces improvement suggestions for a scored resume/job pair.
type Generator struct {
	chatModel      model.ChatModel
	limiter        *ratelimit.TokenBucket
	maxSuggestions int
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithGeneratorLimiter throttles and retries the LLM calls.
func WithGeneratorLimiter(limiter *ratelimit.TokenBucket) GeneratorOption {
	return func(g *Generator) { g.limiter = limiter }
}

// WithMaxSuggestions overrides the per-invocation suggestion cap.
func WithMaxSuggestions(max int) GeneratorOption {
	return func(g *Generator) {
		if max > 0 {
			g.maxSuggestions = max
		}
	}
}

// NewGenerator wires a suggestion generator around a chat model.
func NewGenerator(chatModel model.ChatModel, options ...GeneratorOption) *Generator {
	g := &Generator{
		chatModel:      chatModel,
		maxSuggestions: constants.MaxSuggestionsPerRun,
	}
	for _, option := range options {
		option(g)
	}
	return g
}

// Generate asks the LLM for suggestions. Provider failures come back as
// ErrLLMService; parsing failures never do, worst case the list is empty.
// Repeated calls with identical inputs may return different suggestions,
// that is a property of the model, not a bug.
func (g *Generator) Generate(ctx context.Context, resumeText, jobText string, scores *types.SimilarityResult) ([]types.Suggestion, error) {
	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(g.buildUserPrompt(resumeText, jobText, scores)),
	}

	var response *schema.Message
	call := func() error {
		var err error
		response, err = g.chatModel.Generate(ctx, messages)
		return err
	}

	var err error
	if g.limiter != nil {
		err = g.limiter.RetryWithBackoff(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMService, err)
	}

	suggestions := g.parseSuggestions(ctx, response.Content)
	logger.Ctx(ctx).Debug().Int("suggestions", len(suggestions)).Msg("suggestion generation done")
	return suggestions, nil
}

func (g *Generator) buildUserPrompt(resumeText, jobText string, scores *types.SimilarityResult) string {
	var b strings.Builder

	if scores != nil {
		b.WriteString(fmt.Sprintf("Current overall similarity: %.2f (confidence %.2f, keyword %.2f)\n",
			scores.OverallSimilarity, scores.ConfidenceScore, scores.KeywordSimilarity))
		// Stable ordering keeps prompts reproducible for identical inputs.
		categories := make([]string, 0, len(scores.SectionSimilarities))
		for category := range scores.SectionSimilarities {
			categories = append(categories, category)
		}
		sort.Strings(categories)
		for _, category := range categories {
			b.WriteString(fmt.Sprintf("- %s similarity: %.2f\n", category, scores.SectionSimilarities[category]))
		}
	}

	b.WriteString("\n--- JOB DESCRIPTION ---\n")
	b.WriteString(truncateText(jobText, promptTextLimit))
	b.WriteString("\n\n--- RESUME ---\n")
	b.WriteString(truncateText(resumeText, promptTextLimit))

	return b.String()
}

func truncateText(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}

type suggestionPayload struct {
	Suggestions []suggestionEntry `json:"suggestions"`
}

type suggestionEntry struct {
	Type           string  `json:"type"`
	Priority       int     `json:"priority"`
	ImpactScore    float64 `json:"impact_score"`
	EffortEstimate string  `json:"effort_estimate"`
	Description    string  `json:"description"`
}

// parseSuggestions applies the two-tier strategy: structured JSON first,
// line-based heuristics as fallback. It never fails; unusable output means
// an empty list.
func (g *Generator) parseSuggestions(ctx context.Context, raw string) []types.Suggestion {
	if payload, ok := g.parseJSON(raw); ok {
		return g.normalize(payload.Suggestions)
	}

	logger.Ctx(ctx).Warn().Int("raw_chars", len(raw)).Msg("structured suggestion parse failed, using line fallback")
	return g.parseLines(raw)
}

func (g *Generator) parseJSON(raw string) (*suggestionPayload, bool) {
	jsonStr := extractJSONObject(raw)
	if jsonStr == "" {
		return nil, false
	}

	var payload suggestionPayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err == nil && len(payload.Suggestions) > 0 {
		return &payload, true
	}

	// Models sometimes emit unescaped quotes inside string values; repair
	// and retry once.
	if err := json.Unmarshal([]byte(sanitizeJSON(jsonStr)), &payload); err == nil && len(payload.Suggestions) > 0 {
		return &payload, true
	}
	return nil, false
}

// normalize validates and defaults each parsed entry, then applies the cap.
func (g *Generator) normalize(entries []suggestionEntry) []types.Suggestion {
	suggestions := make([]types.Suggestion, 0, len(entries))
	for _, entry := range entries {
		description := strings.TrimSpace(entry.Description)
		if description == "" {
			continue
		}
		suggestions = append(suggestions, types.Suggestion{
			ID:             uuid.New().String(),
			Type:           normalizeType(entry.Type),
			Priority:       normalizePriority(entry.Priority),
			ImpactScore:    entry.ImpactScore,
			EffortEstimate: normalizeEffort(entry.EffortEstimate),
			Status:         types.SuggestionPending,
			Description:    description,
		})
		if len(suggestions) >= g.maxSuggestions {
			break
		}
	}
	return suggestions
}

// parseLines is the fallback for free-text output: every non-empty,
// non-heading line becomes one default-category suggestion.
func (g *Generator) parseLines(raw string) []types.Suggestion {
	var suggestions []types.Suggestion
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789. ")
		if line == "" || isHeadingLine(line) {
			continue
		}
		suggestions = append(suggestions, types.Suggestion{
			ID:             uuid.New().String(),
			Type:           types.SuggestionContent,
			Priority:       3,
			EffortEstimate: "medium",
			Status:         types.SuggestionPending,
			Description:    line,
		})
		if len(suggestions) >= g.maxSuggestions {
			break
		}
	}
	return suggestions
}

func isHeadingLine(line string) bool {
	if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "```") {
		return true
	}
	trimmed := strings.TrimSuffix(line, ":")
	return len(trimmed) < len(line) && len(strings.Fields(trimmed)) <= 4
}

func normalizeType(raw string) types.SuggestionType {
	switch types.SuggestionType(strings.ToLower(strings.TrimSpace(raw))) {
	case types.SuggestionKeyword:
		return types.SuggestionKeyword
	case types.SuggestionExperience:
		return types.SuggestionExperience
	case types.SuggestionSkills:
		return types.SuggestionSkills
	case types.SuggestionFormat:
		return types.SuggestionFormat
	default:
		return types.SuggestionContent
	}
}

func normalizePriority(priority int) int {
	if priority < 1 {
		return 1
	}
	if priority > 5 {
		return 5
	}
	return priority
}

func normalizeEffort(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return "low"
	case "high":
		return "high"
	default:
		return "medium"
	}
}

// extractJSONObject scans for the first balanced top-level JSON object in
// text. Models wrap their JSON in prose or code fences often enough that a
// plain unmarshal of the whole response is not reliable.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			level++
		case '}':
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// sanitizeJSON escapes double quotes that sit inside string literals but do
// not terminate them. A quote counts as a real string end only when the
// next non-whitespace character is JSON syntax (:, ,, ] or }).
func sanitizeJSON(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		switch {
		case c == '"' && !escaped:
			if !inStr {
				inStr = true
				b.WriteByte(c)
			} else {
				j := i + 1
				for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
					j++
				}
				if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
					inStr = false
					b.WriteByte(c)
				} else {
					b.WriteString("\\\"")
				}
			}
			escaped = false

		case c == '\\' && !escaped:
			escaped = true
			b.WriteByte(c)

		default:
			b.WriteByte(c)
			escaped = false
		}
	}

	return b.String()
}
