package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"dictakey/internal/domain"
	"dictakey/internal/jsonpath"
)

const defaultTranscriptionModel = "whisper-1"

type TranscriberConfig struct {
	Config
	// TextPath locates the transcript in the response body.
	TextPath string
}

// Transcriber uploads recordings to an /audio/transcriptions endpoint.
type Transcriber struct {
	client
	textPath string
}

func NewTranscriber(cfg TranscriberConfig, httpClient *http.Client, log *slog.Logger) *Transcriber {
	textPath := cfg.TextPath
	if textPath == "" {
		textPath = "text"
	}
	return &Transcriber{client: newClient(cfg.Config, httpClient, log), textPath: textPath}
}

func (t *Transcriber) Transcribe(ctx context.Context, audioPath string, model domain.ModelRef) (string, error) {
	key := t.apiKey(model.CredentialsEnv)
	if key == "" {
		return "", ErrMissingAPIKey
	}
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return "", err
	}

	name := model.Name
	if name == "" {
		name = defaultTranscriptionModel
	}
	fields := map[string]string{"model": name, "response_format": "json"}
	if model.Language != "" {
		fields["language"] = model.Language
	}

	body, err := t.do(ctx, func(ctx context.Context) (*http.Request, error) {
		payload, contentType, err := multipartBody(filepath.Base(audioPath), audio, fields)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/audio/transcriptions", payload)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+key)
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("transcription upload failed: %w", err)
	}

	text, ok := jsonpath.Text(body, t.textPath)
	if !ok {
		return "", fmt.Errorf("no transcript in response: %s", summarize(body))
	}
	return strings.TrimSpace(text), nil
}

func multipartBody(fileName string, audio []byte, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", err
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
