// Package portaudio records the default input device through PortAudio.
// It needs cgo and the portaudio system library, so it lives apart from
// the ffmpeg capture.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"

	"dictakey/internal/logger"
	"dictakey/internal/ports"
)

const framesPerBuffer = 1024

// Recorder implements ports.AudioCapture.
type Recorder struct {
	log *slog.Logger
}

func NewRecorder(log *slog.Logger) *Recorder {
	return &Recorder{log: logger.OrDefault(log)}
}

func (r *Recorder) Start(_ context.Context, path string, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init failed: %w", err)
	}

	in := make([]int16, framesPerBuffer*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), framesPerBuffer, in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open stream failed: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("create wav failed: %w", err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = file.Close()
		_ = os.Remove(path)
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("start stream failed: %w", err)
	}

	s := &session{
		stream:  stream,
		in:      in,
		file:    file,
		encoder: wav.NewEncoder(file, cfg.SampleRate, 16, cfg.Channels, 1),
		format:  &goaudio.Format{NumChannels: cfg.Channels, SampleRate: cfg.SampleRate},
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		log:     r.log,
	}
	go s.loop()
	return s, nil
}

type session struct {
	stream  *portaudio.Stream
	in      []int16
	file    *os.File
	encoder *wav.Encoder
	format  *goaudio.Format
	log     *slog.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	loopErr  error
	stopErr  error
}

func (s *session) loop() {
	defer close(s.done)

	samples := make([]int, len(s.in))
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				s.log.Debug("portaudio input overflowed")
				continue
			}
			s.loopErr = fmt.Errorf("stream read failed: %w", err)
			return
		}
		for i, v := range s.in {
			samples[i] = int(v)
		}
		buf := &goaudio.IntBuffer{Format: s.format, Data: samples, SourceBitDepth: 16}
		if err := s.encoder.Write(buf); err != nil {
			s.loopErr = fmt.Errorf("wav write failed: %w", err)
			return
		}
	}
}

func (s *session) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done

		errs := []error{s.loopErr}
		errs = append(errs, s.stream.Stop(), s.stream.Close())
		if err := s.encoder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("wav close failed: %w", err))
		}
		errs = append(errs, s.file.Close(), portaudio.Terminate())
		s.stopErr = errors.Join(errs...)
	})
	return s.stopErr
}
