// Package portaudio captures live audio through the PortAudio C library.
//
// Loopback capture (what the speakers are playing) is preferred when the host
// exposes it as an input device: PulseAudio/PipeWire "Monitor of …" sources,
// Windows "Stereo Mix", or any device whose name contains "loopback". When no
// such device exists the default input (usually a microphone) is used.
//
// The PortAudio shared library and headers must be available at build time
// (CGO).
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/livenote/pkg/audio"
)

const (
	defaultSampleRate    = 16000
	defaultBlockDuration = 100 * time.Millisecond
)

// loopbackHints are lower-cased name fragments identifying loopback devices.
var loopbackHints = []string{"loopback", "monitor", "stereo mix", "what u hear"}

var _ audio.Source = (*Source)(nil)

// Option is a functional option for [New].
type Option func(*Source)

// WithDevice selects the first input device whose name contains name
// (case-insensitive). An unmatched name is a setup error.
func WithDevice(name string) Option {
	return func(s *Source) { s.device = name }
}

// WithPreferLoopback toggles loopback-first device selection. Defaults to true.
func WithPreferLoopback(v bool) Option {
	return func(s *Source) { s.preferLoopback = v }
}

// WithSampleRate sets the target sample rate of emitted frames. The device is
// opened at its native rate and resampled. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(s *Source) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithBlockDuration sets how much audio each emitted frame covers.
// Defaults to 100 ms.
func WithBlockDuration(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.blockDuration = d
		}
	}
}

// Source is an [audio.Source] reading from a PortAudio input stream.
type Source struct {
	device         string
	preferLoopback bool
	sampleRate     int
	blockDuration  time.Duration

	mu      sync.Mutex
	name    string
	stop    chan struct{}
	stopped chan struct{}
}

// New returns an unopened Source. No device is touched until Start.
func New(opts ...Option) *Source {
	s := &Source{
		preferLoopback: true,
		sampleRate:     defaultSampleRate,
		blockDuration:  defaultBlockDuration,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name returns the selected device name, or "portaudio" before Start.
func (s *Source) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.name == "" {
		return "portaudio"
	}
	return s.name
}

// Start initialises PortAudio, selects a device, and starts a blocking-read
// capture goroutine. The returned channel closes when capture ends.
func (s *Source) Start(ctx context.Context) (<-chan audio.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil, errors.New("portaudio: source already started")
	}

	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	devices, err := pa.Devices()
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	def, _ := pa.DefaultInputDevice()
	dev, err := SelectDevice(devices, def, s.device, s.preferLoopback)
	if err != nil {
		_ = pa.Terminate()
		return nil, err
	}

	channels := min(dev.MaxInputChannels, 2)
	nativeRate := int(dev.DefaultSampleRate)
	frames := int(int64(nativeRate) * int64(s.blockDuration) / int64(time.Second))
	buf := make([]float32, frames*channels)

	params := pa.LowLatencyParameters(dev, nil)
	params.Input.Channels = channels
	params.SampleRate = float64(nativeRate)
	params.FramesPerBuffer = frames

	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: open %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: start %q: %w", dev.Name, err)
	}

	s.name = dev.Name
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	slog.Info("audio capture started",
		"device", dev.Name,
		"native_rate", nativeRate,
		"channels", channels,
		"target_rate", s.sampleRate,
	)

	out := make(chan audio.Frame, 16)
	conv := &audio.FormatConverter{
		Source:     audio.Format{SampleRate: nativeRate, Channels: channels},
		TargetRate: s.sampleRate,
	}
	go s.readLoop(ctx, stream, buf, conv, out, s.stop, s.stopped)
	return out, nil
}

func (s *Source) readLoop(ctx context.Context, stream *pa.Stream, buf []float32, conv *audio.FormatConverter, out chan<- audio.Frame, stop, stopped chan struct{}) {
	defer close(stopped)
	defer close(out)
	defer func() {
		_ = stream.Stop()
		_ = stream.Close()
		_ = pa.Terminate()
	}()

	var elapsed time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}
		if err := stream.Read(); err != nil {
			if errors.Is(err, pa.InputOverflowed) {
				slog.Debug("portaudio: input overflowed")
				continue
			}
			slog.Error("portaudio: read failed, stopping capture", "err", err)
			return
		}
		f := audio.Frame{
			Samples:    conv.Convert(buf),
			SampleRate: s.sampleRate,
			Timestamp:  elapsed,
		}
		elapsed += f.Duration()
		select {
		case out <- f:
		case <-ctx.Done():
			return
		case <-stop:
			return
		}
	}
}

// Close stops capture and waits for the read goroutine to release the device.
func (s *Source) Close() error {
	s.mu.Lock()
	stop, stopped := s.stop, s.stopped
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-stopped
	return nil
}

// SelectDevice picks the capture device. An explicit name wins; otherwise a
// loopback-looking device when preferLoopback is set; otherwise def.
// Devices without input channels are never selected.
func SelectDevice(devices []*pa.DeviceInfo, def *pa.DeviceInfo, name string, preferLoopback bool) (*pa.DeviceInfo, error) {
	inputs := make([]*pa.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		if d != nil && d.MaxInputChannels > 0 {
			inputs = append(inputs, d)
		}
	}

	if name != "" {
		want := strings.ToLower(name)
		for _, d := range inputs {
			if strings.Contains(strings.ToLower(d.Name), want) {
				return d, nil
			}
		}
		return nil, fmt.Errorf("portaudio: device %q: %w", name, audio.ErrNoDevice)
	}

	if preferLoopback {
		for _, d := range inputs {
			lower := strings.ToLower(d.Name)
			for _, hint := range loopbackHints {
				if strings.Contains(lower, hint) {
					return d, nil
				}
			}
		}
	}

	if def != nil && def.MaxInputChannels > 0 {
		return def, nil
	}
	if len(inputs) > 0 {
		return inputs[0], nil
	}
	return nil, fmt.Errorf("portaudio: %w", audio.ErrNoDevice)
}
