package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/joss/torch/internal/logging"
	"github.com/joss/torch/internal/tokens"
)

const openaiAPIURL = "https://api.openai.com/v1/chat/completions"

var log = logging.New("llm")

// APIError is a non-200 response from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("OpenAI API error %d: %s", e.StatusCode, e.Message)
}

// OpenAI is a chat-completions client. Usage of every successful request is
// added to the meter when one is set.
type OpenAI struct {
	apiKey  string
	baseURL string
	client  HTTPClient
	meter   *tokens.Meter
}

// NewOpenAI creates a client. An empty baseURL selects the public endpoint.
func NewOpenAI(apiKey, baseURL string, meter *tokens.Meter) *OpenAI {
	return NewOpenAIWithClient(apiKey, baseURL, meter, &http.Client{Timeout: 2 * time.Minute})
}

// NewOpenAIWithClient creates a client using client for transport.
func NewOpenAIWithClient(apiKey, baseURL string, meter *tokens.Meter, client HTTPClient) *OpenAI {
	return &OpenAI{
		apiKey:  apiKey,
		baseURL: normalizeBaseURL(baseURL),
		client:  client,
		meter:   meter,
	}
}

// normalizeBaseURL makes any base URL end in /v1/chat/completions.
func normalizeBaseURL(baseURL string) string {
	if baseURL == "" {
		return openaiAPIURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasSuffix(baseURL, "/chat/completions"):
		return baseURL
	case strings.HasSuffix(baseURL, "/v1"):
		return baseURL + "/chat/completions"
	default:
		return baseURL + "/v1/chat/completions"
	}
}

type openaiRequest struct {
	Model               string    `json:"model"`
	Messages            []Message `json:"messages"`
	MaxTokens           int       `json:"max_tokens,omitempty"`
	MaxCompletionTokens int       `json:"max_completion_tokens,omitempty"`
	Temperature         float64   `json:"temperature,omitempty"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type openaiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends req and returns the first choice.
func (o *OpenAI) Complete(ctx context.Context, req *Request) (*Response, error) {
	msgs := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: req.System})
	}
	msgs = append(msgs, req.Messages...)

	body := openaiRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		// Newer O1/GPT-5 models require max_completion_tokens
		if strings.HasPrefix(req.Model, "o1") || strings.HasPrefix(req.Model, "gpt-5") {
			body.MaxCompletionTokens = req.MaxTokens
		} else {
			body.MaxTokens = req.MaxTokens
		}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	start := time.Now()
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		var apiErr openaiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	var out openaiResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("empty response from %s", req.Model)
	}

	usage := Usage{InputTokens: out.Usage.PromptTokens, OutputTokens: out.Usage.CompletionTokens}
	if o.meter != nil {
		o.meter.Add(req.Model, usage.InputTokens, usage.OutputTokens)
	}
	log.TimedEvent("completion", start, map[string]interface{}{
		"model":         req.Model,
		"input_tokens":  usage.InputTokens,
		"output_tokens": usage.OutputTokens,
	})

	model := out.Model
	if model == "" {
		model = req.Model
	}
	return &Response{Content: out.Choices[0].Message.Content, Model: model, Usage: usage}, nil
}
