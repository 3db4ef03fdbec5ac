package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const openAISystemPrompt = `You are the judge of a drawing party game. Players had one minute to draw the given keyword.
Score each drawing from 0 to 100 for how recognisably it depicts the keyword, with creativity as a tie-breaker.
Reply with a JSON object only:
{"rankings":[{"rank":1,"playerId":"...","score":0}],"comments":[{"playerId":"...","text":"..."}],"summary":"...","criteria":"..."}
Rankings must list every player exactly once, ordered by rank starting at 1, with scores descending.
Write exactly one short, friendly comment per player.`

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// OpenAI judges drawings with a vision-capable chat completions model.
type OpenAI struct {
	cfg    OpenAIConfig
	client *http.Client
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAI{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type openAIChatRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIChatMessage   `json:"messages"`
	Temperature    float64               `json:"temperature,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// StatusError is a non-2xx reply from the API.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openai request failed (%d)", e.Code)
}

// Retryable reports whether another attempt could succeed.
func (e *StatusError) Retryable() bool {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusBadRequest:
		return false
	default:
		return true
	}
}

func (o *OpenAI) Evaluate(ctx context.Context, submissions []Submission, keyword string) (Evaluation, error) {
	if strings.TrimSpace(o.cfg.APIKey) == "" {
		return Evaluation{}, ErrMissingCredentials
	}
	if len(submissions) == 0 {
		return Evaluation{}, ErrNoSubmissions
	}

	parts := []openAIContentPart{{
		Type: "text",
		Text: fmt.Sprintf("Keyword: %q. There are %d drawings. Each image is preceded by its playerId.", keyword, len(submissions)),
	}}
	for _, sub := range submissions {
		url, err := imageURL(sub.ImageData)
		if err != nil {
			return Evaluation{}, fmt.Errorf("%w: player %q: %v", ErrInvalidImage, sub.PlayerID, err)
		}
		parts = append(parts,
			openAIContentPart{Type: "text", Text: "playerId: " + sub.PlayerID},
			openAIContentPart{Type: "image_url", ImageURL: &openAIImageURL{URL: url, Detail: "low"}},
		)
	}

	reqBody := openAIChatRequest{
		Model: o.cfg.Model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: openAISystemPrompt},
			{Role: "user", Content: parts},
		},
		Temperature:    0.4,
		MaxTokens:      1200,
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Evaluation{}, fmt.Errorf("failed to build openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Evaluation{}, fmt.Errorf("failed to build openai request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(o.cfg.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return Evaluation{}, fmt.Errorf("failed to reach openai: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Evaluation{}, fmt.Errorf("failed to read openai response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Evaluation{}, &StatusError{Code: resp.StatusCode}
	}

	var parsed openAIChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Evaluation{}, fmt.Errorf("failed to parse openai response: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return Evaluation{}, fmt.Errorf("openai error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Evaluation{}, errors.New("openai returned no choices")
	}
	return parseEvaluation(parsed.Choices[0].Message.Content)
}

// parseEvaluation decodes the model's JSON reply, tolerating a fenced code
// block around it.
func parseEvaluation(raw string) (Evaluation, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Evaluation{}, errors.New("openai returned an empty evaluation")
	}
	var eval Evaluation
	if err := json.Unmarshal([]byte(raw), &eval); err != nil {
		return Evaluation{}, fmt.Errorf("openai evaluation is not valid json: %w", err)
	}
	eval.Fallback = false
	eval.Summary = strings.TrimSpace(eval.Summary)
	eval.Criteria = strings.TrimSpace(eval.Criteria)
	return eval, nil
}
