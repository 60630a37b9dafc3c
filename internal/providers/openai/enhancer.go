package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"dictakey/internal/domain"
	"dictakey/internal/jsonpath"
)

const (
	defaultChatModel = "gpt-4o-mini"

	defaultInstructions = "You clean up dictated text. Fix punctuation, casing and obvious recognition errors. " +
		"Keep the speaker's wording and language. Reply with the corrected text only."
)

type EnhancerConfig struct {
	Config
	Model string
}

// Enhancer rewrites transcripts through a /chat/completions endpoint.
type Enhancer struct {
	client
	model string
}

func NewEnhancer(cfg EnhancerConfig, httpClient *http.Client, log *slog.Logger) *Enhancer {
	model := cfg.Model
	if model == "" {
		model = defaultChatModel
	}
	return &Enhancer{client: newClient(cfg.Config, httpClient, log), model: model}
}

func (e *Enhancer) Configured() bool {
	return e.apiKey("") != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

func (e *Enhancer) Enhance(ctx context.Context, text string, durationSeconds float64, prompt domain.Prompt) (string, error) {
	key := e.apiKey("")
	if key == "" {
		return "", ErrMissingAPIKey
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	instructions := strings.TrimSpace(prompt.Instructions)
	if instructions == "" {
		instructions = defaultInstructions
	}
	payload, err := json.Marshal(chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: instructions},
			{Role: "user", Content: "<TRANSCRIPT>\n" + text + "\n</TRANSCRIPT>"},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}

	body, err := e.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+key)
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("enhancement request failed: %w", err)
	}

	enhanced, ok := jsonpath.Text(body, "choices[0].message.content")
	if !ok {
		return "", fmt.Errorf("no completion in response: %s", summarize(body))
	}
	e.log.Debug("transcript enhanced", "prompt", prompt.ID, "seconds", durationSeconds, "chars", len(enhanced))
	return strings.TrimSpace(enhanced), nil
}
