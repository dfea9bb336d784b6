package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-match-go/internal/types"
)

// stubChatModel returns a canned response or error.
type stubChatModel struct {
	response string
	err      error
	calls    int
}

func (s *stubChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return schema.AssistantMessage(s.response, nil), nil
}

func (s *stubChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (s *stubChatModel) BindTools(tools []*schema.ToolInfo) error { return nil }

const wellFormedResponse = `{"suggestions": [
	{"type": "keyword", "priority": 1, "impact_score": 8.5, "effort_estimate": "low", "description": "Adicionar a palavra-chave Kubernetes na seção de habilidades."},
	{"type": "experience", "priority": 2, "impact_score": 6.0, "effort_estimate": "medium", "description": "Quantificar os resultados do projeto de migração."},
	{"type": "skills", "priority": 3, "impact_score": 4.0, "effort_estimate": "high", "description": "Detalhar a experiência com mensageria."}
]}`

func TestGenerateParsesStructuredJSON(t *testing.T) {
	g := NewGenerator(&stubChatModel{response: wellFormedResponse})

	suggestions, err := g.Generate(context.Background(), "resume", "job", nil)
	require.NoError(t, err)
	require.Len(t, suggestions, 3)

	first := suggestions[0]
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, types.SuggestionKeyword, first.Type)
	assert.Equal(t, 1, first.Priority)
	assert.InDelta(t, 8.5, first.ImpactScore, 1e-9)
	assert.Equal(t, "low", first.EffortEstimate)
	assert.Equal(t, types.SuggestionPending, first.Status)

	// IDs are unique per suggestion.
	assert.NotEqual(t, suggestions[0].ID, suggestions[1].ID)
}

func TestGenerateJSONInsideCodeFence(t *testing.T) {
	response := "Here are my suggestions:\n```json\n" + wellFormedResponse + "\n```\nHope this helps!"
	g := NewGenerator(&stubChatModel{response: response})

	suggestions, err := g.Generate(context.Background(), "resume", "job", nil)
	require.NoError(t, err)
	assert.Len(t, suggestions, 3)
}

func TestGenerateRepairsUnescapedQuotes(t *testing.T) {
	response := `{"suggestions": [{"type": "content", "priority": 2, "description": "Use the term "microservices" explicitly in the summary."}]}`
	g := NewGenerator(&stubChatModel{response: response})

	suggestions, err := g.Generate(context.Background(), "resume", "job", nil)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Contains(t, suggestions[0].Description, `"microservices"`)
}

func TestGenerateCapsSuggestionCount(t *testing.T) {
	var entries []string
	for i := 0; i < 12; i++ {
		entries = append(entries, fmt.Sprintf(`{"type": "content", "priority": 3, "description": "Sugestão número %d."}`, i))
	}
	response := `{"suggestions": [` + strings.Join(entries, ",") + `]}`

	g := NewGenerator(&stubChatModel{response: response}, WithMaxSuggestions(5))

	suggestions, err := g.Generate(context.Background(), "resume", "job", nil)
	require.NoError(t, err)
	assert.Len(t, suggestions, 5)
}

func TestGenerateNormalizesFields(t *testing.T) {
	response := `{"suggestions": [
		{"type": "banana", "priority": 99, "effort_estimate": "impossible", "description": "Entrada fora do contrato."},
		{"type": "format", "priority": -2, "effort_estimate": "HIGH", "description": "Prioridade abaixo do mínimo."},
		{"type": "keyword", "priority": 1, "description": "   "}
	]}`
	g := NewGenerator(&stubChatModel{response: response})

	suggestions, err := g.Generate(context.Background(), "resume", "job", nil)
	require.NoError(t, err)
	require.Len(t, suggestions, 2)

	assert.Equal(t, types.SuggestionContent, suggestions[0].Type)
	assert.Equal(t, 5, suggestions[0].Priority)
	assert.Equal(t, "medium", suggestions[0].EffortEstimate)

	assert.Equal(t, 1, suggestions[1].Priority)
	assert.Equal(t, "high", suggestions[1].EffortEstimate)
}

func TestGenerateLineFallback(t *testing.T) {
	response := `Suggestions:
- Adicionar palavras-chave da vaga na seção de habilidades para melhorar o alinhamento
- Quantificar resultados com números concretos em cada experiência listada
- Mover a formação acadêmica para depois da experiência profissional`
	g := NewGenerator(&stubChatModel{response: response})

	suggestions, err := g.Generate(context.Background(), "resume", "job", nil)
	require.NoError(t, err)
	require.Len(t, suggestions, 3)

	for _, s := range suggestions {
		assert.Equal(t, types.SuggestionContent, s.Type)
		assert.Equal(t, 3, s.Priority)
		assert.Equal(t, "medium", s.EffortEstimate)
		assert.Equal(t, types.SuggestionPending, s.Status)
	}
}

func TestGenerateUnusableOutputYieldsEmptyList(t *testing.T) {
	g := NewGenerator(&stubChatModel{response: ""})

	suggestions, err := g.Generate(context.Background(), "resume", "job", nil)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestGenerateProviderFailure(t *testing.T) {
	g := NewGenerator(&stubChatModel{err: errors.New("status 503")})

	_, err := g.Generate(context.Background(), "resume", "job", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLLMService)
}

func TestBuildUserPromptIncludesScores(t *testing.T) {
	g := NewGenerator(&stubChatModel{})

	prompt := g.buildUserPrompt("resume text", "job text", &types.SimilarityResult{
		OverallSimilarity: 0.62,
		ConfidenceScore:   0.8,
		SectionSimilarities: map[string]float64{
			"skills":    0.4,
			"full_text": 0.7,
		},
	})

	assert.Contains(t, prompt, "0.62")
	assert.Contains(t, prompt, "skills similarity: 0.40")
	// Categories in sorted order keeps prompts reproducible.
	assert.Less(t, strings.Index(prompt, "full_text"), strings.Index(prompt, "skills"))
}
