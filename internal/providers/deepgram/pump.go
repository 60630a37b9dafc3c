package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"dictakey/internal/ports"
)

const (
	defaultChunkSize   = 4096
	defaultWaitTimeout = 15 * time.Second
)

// pumpAudioChunks copies PCM from r into the stream until EOF.
func pumpAudioChunks(ctx context.Context, r io.Reader, stream ports.StreamingSession, chunkSize int) error {
	if chunkSize < 256 {
		chunkSize = defaultChunkSize
	}

	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				return fmt.Errorf("failed to stream audio: %w", sendErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read audio: %w", err)
		}
	}
}

func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
