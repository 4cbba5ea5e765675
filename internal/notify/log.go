package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/ridehub/accounts/internal/logging"
)

// LogSender stands in for an unconfigured channel and writes deliveries to the log.
// Message bodies carry plaintext codes, so they are only logged when devMode is set.
type LogSender struct {
	logger  *zap.Logger
	devMode bool
}

// NewLogSender creates a logging channel
func NewLogSender(logger *zap.Logger, devMode bool) *LogSender {
	return &LogSender{logger: logger, devMode: devMode}
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	fields := []zap.Field{zap.String("email", logging.MaskEmail(to)), zap.String("subject", subject)}
	if s.devMode {
		fields = append(fields, zap.String("body", body))
	}
	s.logger.Info("email delivery skipped: channel not configured", fields...)
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, to, message string) error {
	fields := []zap.Field{zap.String("phone", logging.MaskPhone(to))}
	if s.devMode {
		fields = append(fields, zap.String("body", message))
	}
	s.logger.Info("sms delivery skipped: channel not configured", fields...)
	return nil
}
