// Package wavfile replays a WAV file as an [audio.Source]. It is used for
// offline transcription runs and for exercising the full pipeline without a
// capture device.
package wavfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/livenote/pkg/audio"
)

const (
	defaultSampleRate    = 16000
	defaultBlockDuration = 100 * time.Millisecond
)

var _ audio.Source = (*Source)(nil)

// Option is a functional option for [New] and [FromReader].
type Option func(*Source)

// WithSampleRate sets the rate of emitted frames. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(s *Source) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithBlockDuration sets how much audio each frame covers. Defaults to 100 ms.
func WithBlockDuration(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.blockDuration = d
		}
	}
}

// WithRealtime paces frame delivery to wall-clock playback speed.
func WithRealtime(v bool) Option {
	return func(s *Source) { s.realtime = v }
}

// Source replays decoded PCM from a WAV container.
type Source struct {
	name          string
	open          func() (io.ReadSeeker, func() error, error)
	sampleRate    int
	blockDuration time.Duration
	realtime      bool

	mu   sync.Mutex
	done chan struct{}
}

// New returns a Source reading the WAV file at path. The file is opened on
// Start; a missing file is reported as [audio.ErrNoDevice].
func New(path string, opts ...Option) *Source {
	s := newSource(path, func() (io.ReadSeeker, func() error, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}, opts)
	return s
}

// FromReader returns a Source replaying r. name is reported by Name.
func FromReader(name string, r io.ReadSeeker, opts ...Option) *Source {
	return newSource(name, func() (io.ReadSeeker, func() error, error) {
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, nil, err
		}
		return r, func() error { return nil }, nil
	}, opts)
}

func newSource(name string, open func() (io.ReadSeeker, func() error, error), opts []Option) *Source {
	s := &Source{
		name:          name,
		open:          open,
		sampleRate:    defaultSampleRate,
		blockDuration: defaultBlockDuration,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name implements [audio.Source].
func (s *Source) Name() string { return s.name }

// Start decodes the whole file and streams it in fixed-size frames. The
// channel closes at end of file.
func (s *Source) Start(ctx context.Context) (<-chan audio.Frame, error) {
	r, closeFn, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("wavfile: open %q: %w: %w", s.name, audio.ErrNoDevice, err)
	}
	samples, err := Decode(r, s.sampleRate)
	_ = closeFn()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	block := int(int64(s.sampleRate) * int64(s.blockDuration) / int64(time.Second))
	if block < 1 {
		block = 1
	}
	out := make(chan audio.Frame, 16)
	go func() {
		defer close(out)
		var ticker *time.Ticker
		if s.realtime {
			ticker = time.NewTicker(s.blockDuration)
			defer ticker.Stop()
		}
		var ts time.Duration
		for off := 0; off < len(samples); off += block {
			end := min(off+block, len(samples))
			f := audio.Frame{Samples: samples[off:end], SampleRate: s.sampleRate, Timestamp: ts}
			ts += f.Duration()
			if ticker != nil {
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			}
			select {
			case out <- f:
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
	return out, nil
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		select {
		case <-s.done:
		default:
			close(s.done)
		}
	}
	return nil
}

// Decode reads a PCM WAV stream and returns mono float32 samples resampled
// to targetRate.
func Decode(r io.ReadSeeker, targetRate int) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("wavfile: not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wavfile: decode: %w", err)
	}
	return toMono(buf, int(dec.BitDepth), targetRate), nil
}

func toMono(buf *goaudio.IntBuffer, bitDepth, targetRate int) []float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))
	interleaved := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		interleaved[i] = float32(v) / scale
	}
	channels, rate := 1, targetRate
	if buf.Format != nil {
		channels = buf.Format.NumChannels
		rate = buf.Format.SampleRate
	}
	conv := &audio.FormatConverter{
		Source:     audio.Format{SampleRate: rate, Channels: channels},
		TargetRate: targetRate,
	}
	return conv.Convert(interleaved)
}
