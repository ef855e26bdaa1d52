package audio

import "time"

// Frame is a block of mono float32 PCM captured from a [Source].
// Samples are normalised to [-1, 1].
type Frame struct {
	// Samples holds the PCM data. Multi-channel sources downmix before emitting.
	Samples []float32

	// SampleRate in Hz (16000 for the ASR path).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Window is one accumulated span of audio handed to the ASR provider.
type Window struct {
	// Samples is the window's mono PCM. The slice is owned by the receiver.
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// Offset is the stream position of the first sample in the window.
	Offset time.Duration

	// Energy is the mean absolute amplitude of the window.
	Energy float64

	// Silent reports that Energy fell below the gate. Silent windows are not
	// transcribed.
	Silent bool
}

// Duration returns the playback length of the window.
func (w Window) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}
