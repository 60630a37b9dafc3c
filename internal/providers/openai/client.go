// Package openai talks to OpenAI-compatible transcription and chat endpoints.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"dictakey/internal/logger"
)

var ErrMissingAPIKey = errors.New("openai api key is not configured")

// Config is shared by the transcriber and the enhancer.
type Config struct {
	APIKey         string
	BaseURL        string
	MaxRetries     int
	RetryBaseDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	return c
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

type client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

func newClient(cfg Config, httpClient *http.Client, log *slog.Logger) client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return client{cfg: cfg.withDefaults(), http: httpClient, log: logger.OrDefault(log)}
}

// apiKey prefers the named environment variable when one is given.
func (c client) apiKey(env string) string {
	if env != "" {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(c.cfg.APIKey)
}

type requestFunc func(ctx context.Context) (*http.Request, error)

// do sends the request built by build, retrying with exponential backoff on
// transport errors, 429 and 5xx.
func (c client) do(ctx context.Context, build requestFunc) ([]byte, error) {
	delay := c.cfg.RetryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		body, err := c.once(ctx, build)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == c.cfg.MaxRetries {
			break
		}
		c.log.Warn("openai request failed, retrying", "attempt", attempt, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return nil, fmt.Errorf("exceeded max retries (%d): %w", c.cfg.MaxRetries, lastErr)
}

func (c client) once(ctx context.Context, build requestFunc) ([]byte, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "dictakey/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: summarize(body)}
	}
	return body, nil
}

func summarize(b []byte) string {
	const limit = 512
	if len(b) == 0 {
		return "<empty>"
	}
	if !utf8.Valid(b) {
		return fmt.Sprintf("<binary %d bytes>", len(b))
	}
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
