package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// ErrAllFailed is returned when every member of a [FallbackGroup] failed or
// was skipped by its open breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the breaker created for each group member. The
// breaker's Name is set to the member name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds an ordered list of interchangeable backends, each
// behind its own [CircuitBreaker]. Members are tried in registration order.
//
// Register every member before sharing the group; after that it is safe for
// concurrent use.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
	active  atomic.Int32
}

// NewFallbackGroup returns a group whose first member is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a member tried after all earlier ones.
func (fg *FallbackGroup[T]) AddFallback(name string, v T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.members = append(fg.members, member[T]{name: name, value: v, breaker: NewCircuitBreaker(cbCfg)})
}

// Names lists the members in try order.
func (fg *FallbackGroup[T]) Names() []string {
	out := make([]string, len(fg.members))
	for i, m := range fg.members {
		out[i] = m.name
	}
	return out
}

// Active returns the member that served the most recent successful call,
// or the primary before any call succeeded.
func (fg *FallbackGroup[T]) Active() string {
	return fg.members[fg.active.Load()].name
}

// Health reports each member's breaker state keyed by name.
func (fg *FallbackGroup[T]) Health() map[string]State {
	out := make(map[string]State, len(fg.members))
	for _, m := range fg.members {
		out[m.name] = m.breaker.State()
	}
	return out
}

// Try runs fn against each member in order and returns the first success.
// When all fail, the error wraps [ErrAllFailed] and every member's error.
func Try[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var errs []error
	for i := range fg.members {
		m := &fg.members[i]
		res, err := Call(m.breaker, func() (R, error) { return fn(m.value) })
		if err == nil {
			if prev := fg.active.Swap(int32(i)); prev != int32(i) {
				slog.Info("fallback switched provider", "from", fg.members[prev].name, "to", m.name)
			}
			return res, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider, circuit open", "provider", m.name)
			continue
		}
		slog.Warn("provider failed, trying next", "provider", m.name, "err", err)
	}
	var zero R
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
