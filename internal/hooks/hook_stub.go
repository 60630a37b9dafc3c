//go:build !windows

package hooks

import (
	"context"

	"dictakey/internal/domain"
)

type unsupportedSource struct {
	kind domain.EventSource
}

// NewGlobalMonitor is not available on this platform.
func NewGlobalMonitor() Source {
	return unsupportedSource{kind: domain.EventSourceGlobal}
}

// NewSystemTap is not available on this platform.
func NewSystemTap() Source {
	return unsupportedSource{kind: domain.EventSourceTap}
}

func (s unsupportedSource) Kind() domain.EventSource {
	return s.kind
}

func (s unsupportedSource) Install(context.Context, *Registry, Token, InstallOptions) error {
	return ErrUnsupported
}

func (s unsupportedSource) Remove() error {
	return nil
}
