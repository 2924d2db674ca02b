package reconnect

import (
	"math"
	"testing"
	"time"
)

func TestExponential_Delay(t *testing.T) {
	p := Exponential{Initial: 100 * time.Millisecond, Multiplier: 2, Max: time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{20, time.Second},
	}

	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_JitterBounds(t *testing.T) {
	p := Exponential{Initial: 100 * time.Millisecond, Multiplier: 2, Max: time.Second, Jitter: true}

	for i := 0; i < 200; i++ {
		got := p.Delay(3)
		if got < 200*time.Millisecond || got >= 600*time.Millisecond {
			t.Fatalf("Delay(3) = %v, want within [200ms, 600ms)", got)
		}
	}
}

func TestExponential_Degenerate(t *testing.T) {
	if got := (Exponential{}).Delay(5); got != 0 {
		t.Errorf("zero policy Delay = %v, want 0", got)
	}
	p := Exponential{Initial: time.Second, Multiplier: 0.5}
	if got := p.Delay(4); got != time.Second {
		t.Errorf("sub-1 multiplier Delay = %v, want 1s", got)
	}
}

func TestExponential_UnboundedSaturates(t *testing.T) {
	for _, jitter := range []bool{false, true} {
		p := Exponential{Initial: 100 * time.Millisecond, Multiplier: 2, Jitter: jitter}
		for _, attempt := range []int{64, 200, 5000} {
			got := p.Delay(attempt)
			if got != time.Duration(math.MaxInt64) {
				t.Errorf("jitter=%v Delay(%d) = %v, want saturation at %v", jitter, attempt, got, time.Duration(math.MaxInt64))
			}
		}
		if got := p.Delay(10); got < 25*time.Second || got > 77*time.Second {
			t.Errorf("jitter=%v Delay(10) = %v, want about 51.2s", jitter, got)
		}
	}
}

func TestPolicyFunc(t *testing.T) {
	p := PolicyFunc(func(attempt int) time.Duration { return time.Duration(attempt) * time.Second })
	if got := p.Delay(3); got != 3*time.Second {
		t.Errorf("Delay(3) = %v, want 3s", got)
	}
}
