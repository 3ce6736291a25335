package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy es un reintento acotado con backoff exponencial.
type Policy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

func (p Policy) normalize() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Base <= 0 {
		p.Base = 200 * time.Millisecond
	}
	if p.Max <= 0 {
		p.Max = 5 * time.Second
	}
	return p
}

// Delay devuelve la espera antes del intento n (n >= 1).
func (p Policy) Delay(n int) time.Duration {
	p = p.normalize()
	d := p.Base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	return d
}

// Do ejecuta fn hasta que tenga éxito, se agoten los intentos o se cancele ctx.
// onRetry (opcional) se invoca antes de cada espera.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	p = p.normalize()
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if attempt == p.Attempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, lastErr)
		}
		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("after %d attempts: %w", p.Attempts, lastErr)
}
