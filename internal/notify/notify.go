// Package notify delivers one-time codes to users over email and SMS.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ridehub/accounts/internal/logging"
)

// Dispatcher sends verification codes to a user's contact points
type Dispatcher interface {
	SendEmailCode(ctx context.Context, address, code string) error
	SendTextCode(ctx context.Context, number, code string) error
}

// EmailSender delivers a single email message
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers a single text message
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

const (
	emailSubject = "Email OTP Verification"
	codeMessage  = "Your OTP is: %s"
)

// ChannelDispatcher formats codes and hands them to the email and SMS channels.
// Each send is bounded by timeout.
type ChannelDispatcher struct {
	email   EmailSender
	sms     SMSSender
	timeout time.Duration
	logger  *zap.Logger
}

// NewChannelDispatcher creates a dispatcher over the given channels
func NewChannelDispatcher(email EmailSender, sms SMSSender, timeout time.Duration, logger *zap.Logger) *ChannelDispatcher {
	return &ChannelDispatcher{email: email, sms: sms, timeout: timeout, logger: logger}
}

func (d *ChannelDispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

// SendEmailCode emails code to address
func (d *ChannelDispatcher) SendEmailCode(ctx context.Context, address, code string) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if err := d.email.SendEmail(ctx, address, emailSubject, fmt.Sprintf(codeMessage, code)); err != nil {
		d.logger.Warn("email code delivery failed", zap.String("email", logging.MaskEmail(address)), zap.Error(err))
		return fmt.Errorf("send email code: %w", err)
	}
	return nil
}

// SendTextCode texts code to number
func (d *ChannelDispatcher) SendTextCode(ctx context.Context, number, code string) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if err := d.sms.SendSMS(ctx, number, fmt.Sprintf(codeMessage, code)); err != nil {
		d.logger.Warn("sms code delivery failed", zap.String("phone", logging.MaskPhone(number)), zap.Error(err))
		return fmt.Errorf("send sms code: %w", err)
	}
	return nil
}
