// Package whisper runs whisper.cpp locally, either as a warm whisper-server
// process per loaded model or as a one-shot CLI invocation.
package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"dictakey/internal/domain"
	"dictakey/internal/jsonpath"
	"dictakey/internal/logger"
)

const blankAudioMarker = "[BLANK_AUDIO]"

var ErrModelPathMissing = errors.New("local model has no weights path")

type Config struct {
	// ServerCommand is the whisper-server binary. Empty selects CLI mode.
	ServerCommand  string
	CLICommand     string
	Host           string
	Threads        int
	StartupTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.CLICommand == "" {
		c.CLICommand = "whisper-cli"
	}
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 30 * time.Second
	}
	return c
}

// Local implements ports.Transcriber and ports.ModelLoader.
type Local struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger

	mu      sync.Mutex
	servers map[string]*server
}

type server struct {
	cmd     *exec.Cmd
	baseURL string
	exited  chan struct{}
}

func NewLocal(cfg Config, httpClient *http.Client, log *slog.Logger) *Local {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Local{
		cfg:     cfg.withDefaults(),
		http:    httpClient,
		log:     logger.OrDefault(log),
		servers: make(map[string]*server),
	}
}

// Load starts a whisper-server for the model and waits until it answers.
// In CLI mode it only checks that the weights exist.
func (l *Local) Load(ctx context.Context, model domain.ModelRef) error {
	if model.Path == "" {
		return ErrModelPathMissing
	}
	if _, err := os.Stat(model.Path); err != nil {
		return fmt.Errorf("model weights unavailable: %w", err)
	}
	if l.cfg.ServerCommand == "" {
		return nil
	}

	l.mu.Lock()
	if _, ok := l.servers[model.Name]; ok {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	port, err := freePort(l.cfg.Host)
	if err != nil {
		return err
	}
	args := []string{"-m", model.Path, "--host", l.cfg.Host, "--port", strconv.Itoa(port)}
	if l.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(l.cfg.Threads))
	}
	if model.Language != "" {
		args = append(args, "-l", model.Language)
	}

	cmd := exec.Command(l.cfg.ServerCommand, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start whisper-server: %w", err)
	}
	srv := &server{
		cmd:     cmd,
		baseURL: "http://" + net.JoinHostPort(l.cfg.Host, strconv.Itoa(port)),
		exited:  make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(srv.exited)
	}()

	if err := l.awaitReady(ctx, srv); err != nil {
		_ = cmd.Process.Kill()
		<-srv.exited
		return fmt.Errorf("whisper-server did not become ready: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	l.mu.Lock()
	l.servers[model.Name] = srv
	l.mu.Unlock()
	l.log.Info("local model loaded", "model", model.Name, "url", srv.baseURL)
	return nil
}

func (l *Local) awaitReady(ctx context.Context, srv *server) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StartupTimeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.baseURL+"/", nil)
		if err != nil {
			return err
		}
		if resp, err := l.http.Do(req); err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode < http.StatusInternalServerError {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-srv.exited:
			return errors.New("process exited")
		case <-ticker.C:
		}
	}
}

// Unload stops the model's server, if any.
func (l *Local) Unload(model domain.ModelRef) error {
	l.mu.Lock()
	srv, ok := l.servers[model.Name]
	delete(l.servers, model.Name)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	_ = srv.cmd.Process.Signal(os.Interrupt)
	select {
	case <-srv.exited:
	case <-time.After(2 * time.Second):
		_ = srv.cmd.Process.Kill()
		<-srv.exited
	}
	l.log.Info("local model unloaded", "model", model.Name)
	return nil
}

func (l *Local) Transcribe(ctx context.Context, audioPath string, model domain.ModelRef) (string, error) {
	l.mu.Lock()
	srv, warm := l.servers[model.Name]
	l.mu.Unlock()

	if warm {
		return l.transcribeServer(ctx, srv, audioPath)
	}
	return l.transcribeCLI(ctx, audioPath, model)
}

func (l *Local) transcribeServer(ctx context.Context, srv *server, audioPath string) (string, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	_ = writer.WriteField("response_format", "json")
	_ = writer.WriteField("temperature", "0.0")
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.baseURL+"/inference", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := l.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper-server request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper-server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	text, _ := jsonpath.Text(body, "text")
	return cleanTranscript(text), nil
}

func (l *Local) transcribeCLI(ctx context.Context, audioPath string, model domain.ModelRef) (string, error) {
	if model.Path == "" {
		return "", ErrModelPathMissing
	}
	args := []string{"-m", model.Path, "-nt", "-f", audioPath}
	if model.Language != "" {
		args = append(args, "-l", model.Language)
	}
	if l.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(l.cfg.Threads))
	}

	cmd := exec.CommandContext(ctx, l.cfg.CLICommand, args...)
	l.log.Debug("executing whisper command", "command", cmd.String())

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("whisper execution failed: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("whisper execution failed: %w", err)
	}
	return cleanTranscript(string(output)), nil
}

// Close stops every running server.
func (l *Local) Close() {
	l.mu.Lock()
	names := make([]string, 0, len(l.servers))
	for name := range l.servers {
		names = append(names, name)
	}
	l.mu.Unlock()

	for _, name := range names {
		_ = l.Unload(domain.ModelRef{Name: name})
	}
}

// cleanTranscript joins non-empty lines and drops blank-audio markers.
func cleanTranscript(output string) string {
	var builder strings.Builder
	for _, line := range strings.Split(output, "\n") {
		text := strings.TrimSpace(strings.ReplaceAll(line, blankAudioMarker, ""))
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(text)
	}
	return builder.String()
}

func freePort(host string) (int, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, fmt.Errorf("failed to reserve a port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
