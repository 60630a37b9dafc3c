package deepgram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dictakey/internal/audio"
	"dictakey/internal/domain"
	"dictakey/internal/logger"
	"dictakey/internal/ports"
)

// Transcriber replays a recorded WAV through a streaming session and returns the aggregated text.
type Transcriber struct {
	provider    ports.StreamingProvider
	chunkSize   int
	waitTimeout time.Duration
	log         *slog.Logger
}

func NewTranscriber(provider ports.StreamingProvider, chunkSize int, log *slog.Logger) *Transcriber {
	return &Transcriber{
		provider:    provider,
		chunkSize:   chunkSize,
		waitTimeout: defaultWaitTimeout,
		log:         logger.OrDefault(log),
	}
}

func (t *Transcriber) Transcribe(ctx context.Context, audioPath string, model domain.ModelRef) (string, error) {
	pcm, err := audio.OpenPCM(audioPath)
	if err != nil {
		return "", err
	}
	defer pcm.Close()

	if pcm.BitDepth != 16 {
		return "", fmt.Errorf("unsupported bit depth %d, want 16", pcm.BitDepth)
	}

	session, err := t.provider.StartStreaming(ctx, ports.StreamingConfig{
		Model:      model.Name,
		Language:   model.Language,
		SampleRate: pcm.SampleRate,
		Channels:   pcm.Channels,
		Encoding:   "linear16",
	})
	if err != nil {
		return "", err
	}

	aggregator := newTranscriptAggregator()
	consumed := make(chan struct{})
	go consumeTranscriptEvents(session, aggregator, consumed)

	started := time.Now()
	if err := pumpAudioChunks(ctx, pcm, session, t.chunkSize); err != nil {
		_ = session.Close()
		<-consumed
		return "", err
	}
	_ = session.CloseSend()

	waitErr := waitForStream(session, t.waitTimeout)
	<-consumed
	if waitErr != nil {
		return "", fmt.Errorf("deepgram stream failed: %w", waitErr)
	}

	text := aggregator.Raw()
	t.log.Debug("deepgram transcription finished", "model", model.Name, "chars", len(text), "elapsed", time.Since(started))
	return text, nil
}
