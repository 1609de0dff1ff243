package util

import (
	"testing"
	"time"
)

func TestSkipThrottler(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tt := NewSkipThrottler(time.Second)
	tt.now = func() time.Time { return now }

	steps := []struct {
		advance time.Duration
		ok      bool
	}{
		{advance: 0, ok: true},
		{advance: 500 * time.Millisecond, ok: false},
		{advance: 400 * time.Millisecond, ok: false},
		{advance: 100 * time.Millisecond, ok: true},
		{advance: 999 * time.Millisecond, ok: false},
		{advance: 5 * time.Second, ok: true},
	}
	for i, s := range steps {
		now = now.Add(s.advance)
		if ok := tt.Ok(); ok != s.ok {
			t.Fatalf("step %d: %t, expected %t", i, ok, s.ok)
		}
	}
}
