package notify

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings configures the circuit breaker placed in front of a channel
type BreakerSettings struct {
	MaxFailures uint32
	Timeout     time.Duration
}

func newBreaker(name string, s BreakerSettings, logger *zap.Logger) *gobreaker.CircuitBreaker {
	maxFailures := s.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
}

// BreakerEmail guards an EmailSender with a circuit breaker
type BreakerEmail struct {
	next EmailSender
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerEmail wraps next
func NewBreakerEmail(next EmailSender, s BreakerSettings, logger *zap.Logger) *BreakerEmail {
	return &BreakerEmail{next: next, cb: newBreaker("email", s, logger)}
}

func (b *BreakerEmail) SendEmail(ctx context.Context, to, subject, body string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.SendEmail(ctx, to, subject, body)
	})
	return err
}

// BreakerSMS guards an SMSSender with a circuit breaker
type BreakerSMS struct {
	next SMSSender
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerSMS wraps next
func NewBreakerSMS(next SMSSender, s BreakerSettings, logger *zap.Logger) *BreakerSMS {
	return &BreakerSMS{next: next, cb: newBreaker("sms", s, logger)}
}

func (b *BreakerSMS) SendSMS(ctx context.Context, to, message string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.SendSMS(ctx, to, message)
	})
	return err
}
