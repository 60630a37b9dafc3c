// Package delivery puts finished transcripts where the user needs them: the
// system clipboard and the focused input field.
package delivery

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
)

// SystemClipboard reads and writes the OS clipboard.
type SystemClipboard struct{}

func NewSystemClipboard() SystemClipboard {
	return SystemClipboard{}
}

func (SystemClipboard) SetText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if clipboard.Unsupported {
		return ErrClipboardUnsupported
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard write failed: %w", err)
	}
	return nil
}

func (SystemClipboard) ReadText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if clipboard.Unsupported {
		return "", ErrClipboardUnsupported
	}
	return clipboard.ReadAll()
}
