package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var ErrInvalidWAV = errors.New("not a valid wav file")

// WAVInspector reads recording metadata from WAV headers.
type WAVInspector struct{}

func NewWAVInspector() WAVInspector {
	return WAVInspector{}
}

func (WAVInspector) Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return 0, fmt.Errorf("%s: %w", path, ErrInvalidWAV)
	}
	duration, err := decoder.Duration()
	if err != nil {
		return 0, fmt.Errorf("failed to read wav duration: %w", err)
	}
	return duration, nil
}

// PCMStream exposes the raw PCM payload of a WAV file.
type PCMStream struct {
	io.Reader
	SampleRate int
	Channels   int
	BitDepth   int

	file *os.File
}

func (s *PCMStream) Close() error {
	return s.file.Close()
}

// OpenPCM positions a reader at the start of the WAV data chunk.
func OpenPCM(path string) (*PCMStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrInvalidWAV)
	}
	if err := decoder.FwdToPCM(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to locate pcm data: %w", err)
	}

	return &PCMStream{
		Reader:     io.LimitReader(decoder.PCMChunk, int64(decoder.PCMChunk.Size)),
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
		file:       f,
	}, nil
}

// WriteWAV encodes 16-bit samples into a new WAV file at path.
func WriteWAV(path string, samples []int, sampleRate int, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	encoder := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := encoder.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write wav samples: %w", err)
	}
	if err := encoder.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to finalize wav: %w", err)
	}
	return f.Close()
}
