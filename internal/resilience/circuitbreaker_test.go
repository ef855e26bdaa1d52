package resilience

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fakeClock is a manually advanced time source.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *fakeClock) {
	clk := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cfg.Now = clk.Now
	return NewCircuitBreaker(cfg), clk
}

func fail() error { return errTest }
func ok() error   { return nil }

// trip opens cb by feeding it failures.
func trip(t *testing.T, cb *CircuitBreaker) {
	t.Helper()
	for cb.State() == StateClosed {
		_ = cb.Execute(fail)
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v after failures, want open", cb.State())
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "wiki"})
	if cb.cfg.MaxFailures != 5 || cb.cfg.ResetTimeout != 30*time.Second || cb.cfg.HalfOpenMax != 3 {
		t.Errorf("defaults = %+v", cb.cfg)
	}
	if cb.cfg.IsFailure == nil || cb.cfg.Now == nil {
		t.Error("IsFailure or Now not defaulted")
	}
	if cb.State() != StateClosed || cb.Name() != "wiki" {
		t.Errorf("new breaker: state %v, name %q", cb.State(), cb.Name())
	}
}

func TestCircuitBreaker_Sequences(t *testing.T) {
	t.Parallel()
	const cooldown = time.Minute

	tests := []struct {
		name string
		// steps run in order; a nil step advances the clock past the cool-down.
		steps []func() error
		want  State
	}{
		{"below threshold stays closed", []func() error{fail, fail}, StateClosed},
		{"threshold opens", []func() error{fail, fail, fail}, StateOpen},
		{"success resets the count", []func() error{fail, fail, ok, fail, fail}, StateClosed},
		{"cooled down reports half-open", []func() error{fail, fail, fail, nil}, StateHalfOpen},
		{"failed probe reopens", []func() error{fail, fail, fail, nil, fail}, StateOpen},
		{"one good probe is not enough", []func() error{fail, fail, fail, nil, ok}, StateHalfOpen},
		{"enough good probes close", []func() error{fail, fail, fail, nil, ok, ok}, StateClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cb, clk := newTestBreaker(CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: cooldown, HalfOpenMax: 2})
			for _, step := range tt.steps {
				if step == nil {
					clk.Advance(cooldown)
					continue
				}
				_ = cb.Execute(step)
			}
			if got := cb.State(); got != tt.want {
				t.Errorf("state = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCircuitBreaker_OpenRejectsWithoutCalling(t *testing.T) {
	t.Parallel()
	cb, clk := newTestBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})
	trip(t, cb)

	clk.Advance(59 * time.Second)
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("Execute = %v, called %v; want ErrCircuitOpen without a call", err, called)
	}
}

func TestCircuitBreaker_ProbeBudget(t *testing.T) {
	t.Parallel()
	cb, clk := newTestBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Second, HalfOpenMax: 1})
	trip(t, cb)
	clk.Advance(time.Second)

	// While the single probe is in flight, further calls are rejected.
	var inner error
	_ = cb.Execute(func() error {
		inner = cb.Execute(ok)
		return nil
	})
	if !errors.Is(inner, ErrCircuitOpen) {
		t.Errorf("concurrent call during probe = %v, want ErrCircuitOpen", inner)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v after the probe succeeded, want closed", cb.State())
	}
}

func TestCircuitBreaker_ReopenRestartsCooldown(t *testing.T) {
	t.Parallel()
	cb, clk := newTestBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})
	trip(t, cb)
	clk.Advance(time.Minute)
	_ = cb.Execute(fail)

	clk.Advance(30 * time.Second)
	if cb.State() != StateOpen {
		t.Errorf("state = %v half a cool-down after a failed probe, want open", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()
	cb, _ := newTestBreaker(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	trip(t, cb)

	cb.Reset()
	if err := cb.Execute(ok); err != nil {
		t.Fatalf("Execute after Reset: %v", err)
	}
	_ = cb.Execute(fail)
	if cb.State() != StateClosed {
		t.Error("Reset did not clear the failure count")
	}
}

func TestCircuitBreaker_IgnoredErrors(t *testing.T) {
	t.Parallel()
	errNotFound := errors.New("not found")

	tests := []struct {
		name      string
		isFailure func(error) bool
		err       error
	}{
		{"cancellation by default", nil, fmt.Errorf("fetch: %w", context.Canceled)},
		{"custom classifier", func(err error) bool { return err != nil && !errors.Is(err, errNotFound) }, errNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cb, _ := newTestBreaker(CircuitBreakerConfig{MaxFailures: 1, IsFailure: tt.isFailure})
			if err := cb.Execute(func() error { return tt.err }); !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v passed through", err, tt.err)
			}
			if cb.State() != StateClosed {
				t.Errorf("state = %v, want closed", cb.State())
			}
		})
	}
}

func TestCircuitBreaker_IgnoredErrorReturnsProbeSlot(t *testing.T) {
	t.Parallel()
	cb, clk := newTestBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Second, HalfOpenMax: 1})
	trip(t, cb)
	clk.Advance(time.Second)

	_ = cb.Execute(func() error { return context.Canceled })
	if err := cb.Execute(ok); err != nil {
		t.Fatalf("probe after a cancelled probe: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	t.Parallel()
	var got []string
	cb, clk := newTestBreaker(CircuitBreakerConfig{
		Name:         "ddg",
		MaxFailures:  1,
		ResetTimeout: time.Second,
		HalfOpenMax:  1,
		OnStateChange: func(name string, from, to State) {
			got = append(got, fmt.Sprintf("%s:%v->%v", name, from, to))
		},
	})

	_ = cb.Execute(fail)
	clk.Advance(time.Second)
	_ = cb.Execute(ok)
	_ = cb.Execute(fail)
	cb.Reset()

	want := []string{
		"ddg:closed->open",
		"ddg:open->half-open",
		"ddg:half-open->closed",
		"ddg:closed->open",
		"ddg:open->closed",
	}
	if !slices.Equal(got, want) {
		t.Errorf("transitions\n got %v\nwant %v", got, want)
	}
}

func TestCall(t *testing.T) {
	t.Parallel()
	cb, _ := newTestBreaker(CircuitBreakerConfig{MaxFailures: 1})

	if got, err := Call(cb, func() (string, error) { return "summary", nil }); err != nil || got != "summary" {
		t.Fatalf("Call = %q, %v", got, err)
	}
	_, _ = Call(cb, func() (string, error) { return "", errTest })
	if got, err := Call(cb, func() (string, error) { return "x", nil }); !errors.Is(err, ErrCircuitOpen) || got != "" {
		t.Fatalf("Call on open breaker = %q, %v; want zero value and ErrCircuitOpen", got, err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(-1):     "unknown",
		State(7):      "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d) = %q, want %q", int(s), got, want)
		}
	}
}
