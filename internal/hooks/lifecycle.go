package hooks

//go:generate mockgen -destination=mock_source_test.go -package=hooks dictakey/internal/hooks Source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"dictakey/internal/domain"
	"dictakey/internal/logger"
	"dictakey/internal/ports"
)

// ErrUnsupported is returned by sources that have no implementation on this platform.
var ErrUnsupported = errors.New("input source not supported on this platform")

// InstallOptions configures one source installation.
type InstallOptions struct {
	Key domain.PushToTalkKey
	// Suppress lets the source swallow the bound key. Only the system tap honors it.
	Suppress bool
}

// Source is one OS-level input hook.
type Source interface {
	Kind() domain.EventSource
	Install(ctx context.Context, registry *Registry, token Token, opts InstallOptions) error
	// Remove must be safe to call when nothing is installed.
	Remove() error
}

type installedSource struct {
	source Source
	token  Token
}

// Lifecycle owns acquisition and release of every input source.
type Lifecycle struct {
	registry    *Registry
	sink        Sink
	permissions ports.PermissionChecker
	sources     []Source
	log         *slog.Logger

	mu        sync.Mutex
	installed []installedSource
}

func NewLifecycle(
	registry *Registry,
	sink Sink,
	permissions ports.PermissionChecker,
	log *slog.Logger,
	sources ...Source,
) *Lifecycle {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Lifecycle{
		registry:    registry,
		sink:        sink,
		permissions: permissions,
		sources:     sources,
		log:         logger.OrDefault(log).With("component", "hooks"),
	}
}

// Reconfigure tears down every installed source, then installs the sources for
// binding. A disabled binding leaves nothing installed.
func (l *Lifecycle) Reconfigure(ctx context.Context, binding domain.PushToTalkBinding) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.releaseLocked(); err != nil {
		l.log.Warn("hook release reported errors", "error", err)
	}
	if !binding.Enabled {
		return nil
	}

	var errs []error
	for _, source := range l.sources {
		opts := InstallOptions{Key: binding.Key}
		if source.Kind() == domain.EventSourceTap {
			opts.Suppress = l.permissions != nil && l.permissions.Accessibility()
			if !opts.Suppress {
				l.log.Warn("accessibility permission unavailable, event tap is observe-only")
			}
		}

		token := l.registry.Register(Owner{Source: source.Kind(), Sink: l.sink})
		if err := source.Install(ctx, l.registry, token, opts); err != nil {
			l.registry.Unregister(token)
			if errors.Is(err, ErrUnsupported) {
				l.log.Debug("input source skipped", "source", source.Kind())
				continue
			}
			errs = append(errs, fmt.Errorf("install %s source: %w", source.Kind(), err))
			continue
		}
		l.installed = append(l.installed, installedSource{source: source, token: token})
		l.log.Debug("input source installed", "source", source.Kind(), "key", binding.Key, "suppress", opts.Suppress)
	}
	return errors.Join(errs...)
}

// Release removes every installed source. Calling it again is a no-op.
func (l *Lifecycle) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releaseLocked()
}

// Installed lists the kinds that are currently installed.
func (l *Lifecycle) Installed() []domain.EventSource {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.EventSource, 0, len(l.installed))
	for _, item := range l.installed {
		out = append(out, item.source.Kind())
	}
	return out
}

func (l *Lifecycle) releaseLocked() error {
	if len(l.installed) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, item := range l.installed {
		l.registry.Unregister(item.token)
		g.Go(item.source.Remove)
	}
	l.installed = nil
	return g.Wait()
}
