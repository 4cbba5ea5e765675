package notify

import (
	"go.uber.org/zap"

	"github.com/ridehub/accounts/internal/config"
)

// FromConfig assembles the dispatcher for cfg. Configured providers are used
// behind circuit breakers; missing ones fall back to LogSender.
func FromConfig(cfg *config.Config, logger *zap.Logger) *ChannelDispatcher {
	breaker := BreakerSettings{MaxFailures: cfg.Breaker.MaxFailures, Timeout: cfg.Breaker.Timeout}

	var email EmailSender
	if cfg.Brevo.Configured() {
		email = NewBreakerEmail(
			NewBrevoClient(cfg.Brevo.APIKey, cfg.Brevo.FromEmail, cfg.Brevo.FromName, cfg.NotifyTimeout),
			breaker, logger)
	} else {
		logger.Warn("brevo not configured, email codes will be logged only")
		email = NewLogSender(logger, cfg.OTPDevMode)
	}

	var sms SMSSender
	if cfg.Twilio.Configured() {
		sms = NewBreakerSMS(
			NewTwilioClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber, cfg.NotifyTimeout),
			breaker, logger)
	} else {
		logger.Warn("twilio not configured, sms codes will be logged only")
		sms = NewLogSender(logger, cfg.OTPDevMode)
	}

	return NewChannelDispatcher(email, sms, cfg.NotifyTimeout, logger)
}
