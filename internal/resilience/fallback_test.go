package resilience

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"
)

// newGroup builds a group of named string members; fn failures are driven by
// the failing set.
func newGroup(cfg CircuitBreakerConfig, names ...string) *FallbackGroup[string] {
	fg := NewFallbackGroup(names[0], names[0], FallbackConfig{CircuitBreaker: cfg})
	for _, n := range names[1:] {
		fg.AddFallback(n, n)
	}
	return fg
}

func failing(names ...string) func(string) (string, error) {
	return func(v string) (string, error) {
		if slices.Contains(names, v) {
			return "", errTest
		}
		return "served by " + v, nil
	}
}

func TestTry(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		failing    []string
		want       string
		wantErr    bool
		wantActive string
	}{
		{name: "primary serves", want: "served by local", wantActive: "local"},
		{name: "fails over in order", failing: []string{"local"}, want: "served by native", wantActive: "native"},
		{name: "last resort", failing: []string{"local", "native"}, want: "served by cloud", wantActive: "cloud"},
		{name: "all fail", failing: []string{"local", "native", "cloud"}, wantErr: true, wantActive: "local"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fg := newGroup(CircuitBreakerConfig{MaxFailures: 3}, "local", "native", "cloud")
			got, err := Try(fg, failing(tt.failing...))
			if tt.wantErr {
				if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want ErrAllFailed wrapping errTest", err)
				}
				for _, n := range fg.Names() {
					if !strings.Contains(err.Error(), n+":") {
						t.Errorf("err %q does not name member %q", err, n)
					}
				}
			} else if err != nil {
				t.Fatalf("Try: %v", err)
			}
			if got != tt.want {
				t.Errorf("Try = %q, want %q", got, tt.want)
			}
			if a := fg.Active(); a != tt.wantActive {
				t.Errorf("Active = %q, want %q", a, tt.wantActive)
			}
		})
	}
}

func TestTry_OpenBreakerSkipsMember(t *testing.T) {
	t.Parallel()
	fg := newGroup(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}, "local", "cloud")

	calls := map[string]int{}
	fn := func(v string) (string, error) {
		calls[v]++
		if v == "local" {
			return "", errTest
		}
		return v, nil
	}
	for range 5 {
		if _, err := Try(fg, fn); err != nil {
			t.Fatalf("Try: %v", err)
		}
	}
	if calls["local"] != 2 {
		t.Errorf("local called %d times, want 2 before its breaker opened", calls["local"])
	}
	if calls["cloud"] != 5 {
		t.Errorf("cloud called %d times, want 5", calls["cloud"])
	}
	h := fg.Health()
	if h["local"] != StateOpen || h["cloud"] != StateClosed {
		t.Errorf("Health = %v, want local open and cloud closed", h)
	}
}

func TestTry_ReturnsToPrimaryAfterRecovery(t *testing.T) {
	t.Parallel()
	fg := newGroup(CircuitBreakerConfig{MaxFailures: 5}, "local", "cloud")

	if _, err := Try(fg, failing("local")); err != nil {
		t.Fatalf("Try: %v", err)
	}
	if fg.Active() != "cloud" {
		t.Fatalf("Active = %q, want cloud", fg.Active())
	}
	if _, err := Try(fg, failing()); err != nil {
		t.Fatalf("Try: %v", err)
	}
	if fg.Active() != "local" {
		t.Errorf("Active = %q, want local once it recovered", fg.Active())
	}
}

func TestFallbackGroup_BreakersNamedAfterMembers(t *testing.T) {
	t.Parallel()
	opened := make(chan string, 4)
	fg := newGroup(CircuitBreakerConfig{
		MaxFailures: 1,
		OnStateChange: func(name string, _, to State) {
			if to == StateOpen {
				opened <- name
			}
		},
	}, "local", "cloud")

	if _, err := Try(fg, failing("local")); err != nil {
		t.Fatalf("Try: %v", err)
	}
	select {
	case name := <-opened:
		if name != "local" {
			t.Errorf("opened breaker %q, want local", name)
		}
	default:
		t.Error("no breaker opened")
	}
	if got := fg.Names(); !slices.Equal(got, []string{"local", "cloud"}) {
		t.Errorf("Names = %v", got)
	}
}
