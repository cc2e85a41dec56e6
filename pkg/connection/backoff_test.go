package connection

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Run("DefaultSequence", func(t *testing.T) {
		b := NewBackoff()

		// Expected sequence (without jitter): 100ms, 200ms, 400ms, ..., 5s, 5s...
		expected := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			800 * time.Millisecond,
			1600 * time.Millisecond,
			3200 * time.Millisecond,
			5 * time.Second,
			5 * time.Second, // Should stay at max
		}

		for i, exp := range expected {
			base := b.Current()
			_ = b.Next() // Advance

			if base < exp-time.Millisecond || base > exp+time.Millisecond {
				t.Errorf("Attempt %d: base = %v, want %v", i, base, exp)
			}
		}
	})

	t.Run("Jitter", func(t *testing.T) {
		b := NewBackoff()

		samples := make([]time.Duration, 10)
		for i := range samples {
			samples[i] = b.Peek()
		}

		// All samples should be between 100ms and 125ms (with jitter)
		for i, s := range samples {
			if s < 100*time.Millisecond || s > time.Duration(float64(100*time.Millisecond)*1.25)+time.Millisecond {
				t.Errorf("Sample %d: %v out of expected range [100ms, 125ms]", i, s)
			}
		}

		// At least some samples should be different (jitter should vary)
		allSame := true
		for i := 1; i < len(samples); i++ {
			if samples[i] != samples[0] {
				allSame = false
				break
			}
		}
		if allSame {
			t.Error("All jittered samples are identical - jitter may not be working")
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff()

		for i := 0; i < 5; i++ {
			b.Next()
		}

		if b.Current() <= InitialBackoff {
			t.Error("Backoff should have increased")
		}
		if b.Attempts() != 5 {
			t.Errorf("Attempts() = %d, want 5", b.Attempts())
		}

		b.Reset()

		if b.Current() != InitialBackoff {
			t.Errorf("Current() = %v after reset, want %v", b.Current(), InitialBackoff)
		}
		if b.Attempts() != 0 {
			t.Errorf("Attempts() = %d after reset, want 0", b.Attempts())
		}
	})

	t.Run("Exhausted", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{MaxAttempts: 3})

		for i := 0; i < 3; i++ {
			if b.Exhausted() {
				t.Fatalf("Exhausted() = true after %d attempts, budget is 3", i)
			}
			b.Next()
		}
		if !b.Exhausted() {
			t.Error("Exhausted() = false after using the full budget")
		}

		b.Reset()
		if b.Exhausted() {
			t.Error("Exhausted() = true after reset")
		}
	})

	t.Run("NoJitter", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial: 10 * time.Millisecond,
			Jitter:  -1,
		})
		// Negative disables jitter entirely
		if got := b.Peek(); got != 10*time.Millisecond {
			t.Errorf("Peek() = %v with jitter disabled, want exactly 10ms", got)
		}
	})
}
