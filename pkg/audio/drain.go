package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to release a producer blocked on a [Source] channel after the
// consumer has stopped reading.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
