// Package audio defines the capture side of the transcription pipeline.
//
// The two primary abstractions are:
//
//   - [Source] opens an input device (or a file) and delivers mono [Frame]
//     values on a channel until the context is cancelled or Close is called.
//   - [Windower] accumulates frames into fixed-duration, overlapping
//     [Window] values and drops windows whose energy falls below a gate.
//
// Implementations of [Source] live in subpackages (audio/portaudio,
// audio/wavfile). This package lives under pkg/ because external code may
// supply its own capture backend.
package audio

import (
	"context"
	"errors"
)

// ErrNoDevice is returned by [Source.Start] when no suitable capture device
// exists. It is fatal to a recording session.
var ErrNoDevice = errors.New("audio: no suitable capture device")

// Source produces mono PCM frames from a capture device or file.
//
// Implementations must be safe for concurrent use. The channel returned by
// Start is closed when capture ends, either because ctx was cancelled, Close
// was called, the input was exhausted, or the device disappeared.
type Source interface {
	// Start opens the underlying device and begins capture. Setup failures
	// (missing device, permission denied) are returned here and wrap
	// [ErrNoDevice] when no device could be selected.
	Start(ctx context.Context) (<-chan Frame, error)

	// Close stops capture and releases the device. Calling Close more than
	// once is safe and returns nil.
	Close() error

	// Name is a human-readable identifier of the selected device or file.
	Name() string
}
