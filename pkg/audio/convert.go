package audio

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// FormatConverter turns interleaved capture buffers into mono frames at the
// target sample rate. It logs a warning on the first format mismatch.
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Source         Format
	TargetRate     int
	warnedMismatch sync.Once
}

// Convert downmixes then resamples interleaved samples. The returned slice
// never aliases in.
func (c *FormatConverter) Convert(in []float32) []float32 {
	if c.Source.Channels <= 1 && c.Source.SampleRate == c.TargetRate {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", c.Source.String(),
			"to", Format{SampleRate: c.TargetRate, Channels: 1}.String(),
		)
	})
	mono := Downmix(in, c.Source.Channels)
	return Resample(mono, c.Source.SampleRate, c.TargetRate)
}

// Downmix averages interleaved channels into a mono signal. A trailing
// partial frame is dropped.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += in[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match, a copy of the input is returned.
func Resample(in []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(in) < 2 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	dstSamples := int(int64(len(in)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}
	out := make([]float32, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		s0 := in[idx]
		s1 := s0
		if idx+1 < len(in) {
			s1 = in[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// Int16ToFloat32 normalises signed 16-bit samples to [-1, 1].
func Int16ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToInt16 scales normalised samples to signed 16-bit, clamping values
// outside [-1, 1].
func Float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		v := math.Round(float64(s) * 32767.0)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// MeanAbs returns the mean absolute amplitude of samples, the energy measure
// used by the silence gate. Returns 0 for an empty slice.
func MeanAbs(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(samples))
}
