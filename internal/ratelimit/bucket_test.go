package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBucket(t *testing.T, maxTokens int, window time.Duration) (*TokenBucket, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 11, 18, 9, 0, 0, 0, time.UTC)}
	bucket, err := NewWithClock(maxTokens, window, clock.Now)
	if err != nil {
		t.Fatalf("new bucket: %v", err)
	}
	return bucket, clock
}

// TestBurstThenDeny проверяет, что N вызовов проходят, а N+1-й отклоняется.
func TestBurstThenDeny(t *testing.T) {
	bucket, _ := newTestBucket(t, 15, time.Minute)

	for i := 0; i < 15; i++ {
		if d := bucket.TryConsume(); !d.Allowed {
			t.Fatalf("call %d: expected allowed", i+1)
		}
	}

	d := bucket.TryConsume()
	if d.Allowed {
		t.Fatal("expected 16th call to be denied")
	}
	// 15 токенов в минуту: один токен каждые 4 секунды.
	if d.WaitHint != 4*time.Second {
		t.Fatalf("expected wait hint 4s, got %s", d.WaitHint)
	}
}

// TestRefillAfterWindow проверяет полное восстановление за окно.
func TestRefillAfterWindow(t *testing.T) {
	bucket, clock := newTestBucket(t, 15, time.Minute)

	for i := 0; i < 15; i++ {
		bucket.TryConsume()
	}
	if got := bucket.Available(); got != 0 {
		t.Fatalf("expected empty bucket, got %d", got)
	}

	clock.Advance(time.Minute)
	if got := bucket.Available(); got != 15 {
		t.Fatalf("expected 15 tokens after window, got %d", got)
	}

	clock.Advance(10 * time.Minute)
	if got := bucket.Available(); got != 15 {
		t.Fatalf("tokens must not exceed capacity, got %d", got)
	}
}

// TestPartialRefillShrinksWaitHint проверяет расчет ожидания по дефициту.
func TestPartialRefillShrinksWaitHint(t *testing.T) {
	bucket, clock := newTestBucket(t, 2, 2*time.Second)

	bucket.TryConsume()
	bucket.TryConsume()

	clock.Advance(250 * time.Millisecond)
	d := bucket.TryConsume()
	if d.Allowed {
		t.Fatal("expected denial with 0.25 tokens")
	}
	if d.WaitHint != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %s", d.WaitHint)
	}

	clock.Advance(750 * time.Millisecond)
	if d := bucket.TryConsume(); !d.Allowed {
		t.Fatal("expected allowed after deficit refilled")
	}
}

// TestReset проверяет немедленное восстановление емкости.
func TestReset(t *testing.T) {
	bucket, _ := newTestBucket(t, 3, time.Hour)
	for i := 0; i < 3; i++ {
		bucket.TryConsume()
	}
	bucket.Reset()
	if got := bucket.Available(); got != 3 {
		t.Fatalf("expected 3 after reset, got %d", got)
	}
}

// TestInvalidConfig проверяет отказ при неположительных параметрах.
func TestInvalidConfig(t *testing.T) {
	if _, err := New(0, time.Minute); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
	if _, err := New(5, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}
