package audio

import "time"

const (
	defaultWindowDuration  = 3 * time.Second
	defaultOverlap         = 0.5
	defaultEnergyThreshold = 0.01
)

// WindowOption is a functional option for [NewWindower].
type WindowOption func(*Windower)

// WithWindowDuration sets the length of each emitted window. Defaults to 3s.
func WithWindowDuration(d time.Duration) WindowOption {
	return func(w *Windower) {
		if d > 0 {
			w.duration = d
		}
	}
}

// WithOverlap sets the fraction of each window retained as the head of the
// next one. Values outside [0, 1) are ignored. Defaults to 0.5.
func WithOverlap(f float64) WindowOption {
	return func(w *Windower) {
		if f >= 0 && f < 1 {
			w.overlap = f
		}
	}
}

// WithEnergyThreshold sets the mean-absolute-amplitude gate below which a
// window is marked silent. Defaults to 0.01.
func WithEnergyThreshold(t float64) WindowOption {
	return func(w *Windower) {
		if t >= 0 {
			w.threshold = t
		}
	}
}

// Windower accumulates mono samples and cuts them into fixed-size windows
// that overlap by a configurable fraction. It is not safe for concurrent use;
// the engine's capture loop owns it.
type Windower struct {
	sampleRate int
	duration   time.Duration
	overlap    float64
	threshold  float64

	size int
	hop  int

	buf     []float32
	dropped int64 // samples discarded from the head of buf since Reset
}

// NewWindower returns a Windower for audio at sampleRate Hz.
func NewWindower(sampleRate int, opts ...WindowOption) *Windower {
	w := &Windower{
		sampleRate: sampleRate,
		duration:   defaultWindowDuration,
		overlap:    defaultOverlap,
		threshold:  defaultEnergyThreshold,
	}
	for _, o := range opts {
		o(w)
	}
	w.size = int(int64(sampleRate) * int64(w.duration) / int64(time.Second))
	if w.size < 1 {
		w.size = 1
	}
	w.hop = int(float64(w.size) * (1 - w.overlap))
	if w.hop < 1 {
		w.hop = 1
	}
	return w
}

// Size returns the number of samples per window.
func (w *Windower) Size() int { return w.size }

// Hop returns the number of samples the window advances by.
func (w *Windower) Hop() int { return w.hop }

// Push appends samples and returns every window that became complete. Each
// returned window owns its sample slice. Windows whose energy is below the
// threshold are returned with Silent set so callers can account for them.
func (w *Windower) Push(samples []float32) []Window {
	w.buf = append(w.buf, samples...)
	var out []Window
	for len(w.buf) >= w.size {
		chunk := make([]float32, w.size)
		copy(chunk, w.buf[:w.size])
		energy := MeanAbs(chunk)
		out = append(out, Window{
			Samples:    chunk,
			SampleRate: w.sampleRate,
			Offset:     w.offset(w.dropped),
			Energy:     energy,
			Silent:     energy < w.threshold,
		})
		w.buf = append(w.buf[:0], w.buf[w.hop:]...)
		w.dropped += int64(w.hop)
	}
	return out
}

// Buffered returns the number of samples waiting for the next window.
func (w *Windower) Buffered() int { return len(w.buf) }

// Reset discards buffered audio and restarts stream offsets at zero.
func (w *Windower) Reset() {
	w.buf = w.buf[:0]
	w.dropped = 0
}

func (w *Windower) offset(samples int64) time.Duration {
	if w.sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(w.sampleRate)
}
