package notify

import "log/slog"

// LogSMSSender writes SMS messages to the log instead of a carrier gateway.
// It stands in until a provider integration is configured.
type LogSMSSender struct {
	Logger *slog.Logger
}

// Send implements SMSSender.
func (s *LogSMSSender) Send(recipient, text string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("sms delivery", "recipient", recipient, "text", text)
	return nil
}
