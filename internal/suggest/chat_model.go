package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"resume-match-go/internal/config"
	"resume-match-go/internal/logger"
)

const (
	defaultChatAPIURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	defaultChatModel  = "qwen-plus"
)

// OpenAIChatModel speaks the OpenAI-compatible /chat/completions protocol
// and implements the eino model.ChatModel interface. Tool calling is not
// wired; suggestion generation only needs plain completions.
type OpenAIChatModel struct {
	apiKey      string
	modelName   string
	apiURL      string
	temperature float64
	httpClient  *http.Client
}

var _ model.ChatModel = (*OpenAIChatModel)(nil)

// NewOpenAIChatModel creates a chat model client from the LLM config
// section.
func NewOpenAIChatModel(llmCfg config.LLMConfig) (*OpenAIChatModel, error) {
	if strings.TrimSpace(llmCfg.APIKey) == "" {
		return nil, fmt.Errorf("LLM API key is empty")
	}

	modelName := llmCfg.Model
	if strings.TrimSpace(modelName) == "" {
		modelName = defaultChatModel
	}
	apiURL := llmCfg.APIURL
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultChatAPIURL
	}

	timeout := 60 * time.Second
	if llmCfg.TimeoutSecs > 0 {
		timeout = time.Duration(llmCfg.TimeoutSecs) * time.Second
	}

	return &OpenAIChatModel{
		apiKey:      llmCfg.APIKey,
		modelName:   modelName,
		apiURL:      apiURL,
		temperature: llmCfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

type chatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []*schema.Message `json:"messages"`
	Temperature float64           `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

// Generate implements model.ChatModel.
func (m *OpenAIChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	reqPayload := chatCompletionRequest{
		Model:       m.modelName,
		Messages:    messages,
		Temperature: m.temperature,
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chat response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat API status %s: %s", httpResp.Status, string(bodyBytes))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("chat API returned no choices")
	}

	apiMessage := parsed.Choices[0].Message
	content := ""
	if apiMessage.Content != nil {
		content = *apiMessage.Content
	}

	result := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: content,
	}
	if result.Role == "" {
		result.Role = schema.Assistant
	}

	logger.Ctx(ctx).Debug().
		Str("model", m.modelName).
		Int("content_chars", len(content)).
		Str("finish_reason", parsed.Choices[0].FinishReason).
		Msg("chat completion received")

	return result, nil
}

// Stream implements model.ChatModel. Suggestion generation consumes whole
// completions, so streaming is not implemented.
func (m *OpenAIChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("streaming is not implemented for the OpenAI-compatible chat client")
}

// BindTools implements model.ChatModel. No tools are bound.
func (m *OpenAIChatModel) BindTools(tools []*schema.ToolInfo) error {
	if len(tools) > 0 {
		return fmt.Errorf("tool calling is not supported by this chat client")
	}
	return nil
}
