// Package ratelimit реализует token bucket для исходящих вызовов AI-сервиса.
package ratelimit

import (
	"errors"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var ErrInvalidConfig = errors.New("rate limit: max tokens and window must be positive")

// Decision is the outcome of TryConsume. WaitHint is set only on denial.
type Decision struct {
	Allowed  bool
	WaitHint time.Duration
}

// TokenBucket is a non-blocking token bucket: capacity MaxTokens, fully refilled
// from empty over Window.
type TokenBucket struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	maxTokens int
	window    time.Duration
	now       func() time.Time
}

// New создает заполненный bucket.
func New(maxTokens int, window time.Duration) (*TokenBucket, error) {
	return NewWithClock(maxTokens, window, time.Now)
}

// NewWithClock создает bucket с внешними часами (для тестов).
func NewWithClock(maxTokens int, window time.Duration, now func() time.Time) (*TokenBucket, error) {
	if maxTokens <= 0 || window <= 0 {
		return nil, ErrInvalidConfig
	}
	if now == nil {
		now = time.Now
	}

	b := &TokenBucket{maxTokens: maxTokens, window: window, now: now}
	b.limiter = b.newLimiter()
	return b, nil
}

// TryConsume пополняет bucket по прошедшему времени и пытается списать один токен.
// Никогда не блокирует.
func (b *TokenBucket) TryConsume() Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.limiter.AllowN(now, 1) {
		return Decision{Allowed: true}
	}

	deficit := 1 - b.limiter.TokensAt(now)
	if deficit < 0 {
		deficit = 0
	}
	waitMs := math.Ceil(deficit * float64(b.window.Milliseconds()) / float64(b.maxTokens))
	return Decision{Allowed: false, WaitHint: time.Duration(waitMs) * time.Millisecond}
}

// Available возвращает число целых токенов, доступных сейчас.
func (b *TokenBucket) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	tokens := b.limiter.TokensAt(b.now())
	if tokens < 0 {
		return 0
	}
	return int(math.Floor(tokens))
}

// Reset немедленно восстанавливает полную емкость.
func (b *TokenBucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.limiter = b.newLimiter()
}

// MaxTokens returns the burst capacity.
func (b *TokenBucket) MaxTokens() int {
	return b.maxTokens
}

func (b *TokenBucket) newLimiter() *rate.Limiter {
	perSecond := float64(b.maxTokens) / b.window.Seconds()
	return rate.NewLimiter(rate.Limit(perSecond), b.maxTokens)
}
