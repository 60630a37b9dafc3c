// Package providers routes transcription requests to the backend that owns a model.
package providers

import (
	"context"
	"fmt"
	"strings"

	"dictakey/internal/domain"
	"dictakey/internal/ports"
)

// Router implements ports.Transcriber by dispatching on the model's provider.
type Router struct {
	local ports.Transcriber
	cloud map[string]ports.Transcriber
}

func NewRouter(local ports.Transcriber) *Router {
	return &Router{local: local, cloud: make(map[string]ports.Transcriber)}
}

// WithCloud registers a cloud backend under its id, e.g. "deepgram".
func (r *Router) WithCloud(id string, t ports.Transcriber) *Router {
	r.cloud[strings.ToLower(id)] = t
	return r
}

func (r *Router) Transcribe(ctx context.Context, audioPath string, model domain.ModelRef) (string, error) {
	backend, err := r.backend(model)
	if err != nil {
		return "", err
	}
	return backend.Transcribe(ctx, audioPath, model)
}

func (r *Router) backend(model domain.ModelRef) (ports.Transcriber, error) {
	if model.IsLocal() {
		if r.local == nil {
			return nil, fmt.Errorf("no local backend for model %q", model.Name)
		}
		return r.local, nil
	}
	backend, ok := r.cloud[strings.ToLower(model.Cloud)]
	if !ok {
		return nil, fmt.Errorf("unknown cloud provider %q for model %q", model.Cloud, model.Name)
	}
	return backend, nil
}
