package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/c360/sentinel/types"
)

// smsMaxLength is the single-segment SMS limit; longer messages are truncated.
const smsMaxLength = 160

// SMSChannel sends a truncated alert summary to each configured recipient.
type SMSChannel struct {
	sender     SMSSender
	recipients []string
}

// NewSMSChannel creates an SMS channel for the given recipients.
func NewSMSChannel(sender SMSSender, recipients []string) *SMSChannel {
	return &SMSChannel{sender: sender, recipients: recipients}
}

// Name implements Channel.
func (c *SMSChannel) Name() string { return "sms" }

// Send implements Channel. Each recipient is attempted independently; a mix
// of success and failure reports "partial".
func (c *SMSChannel) Send(ctx context.Context, alert types.Alert) DeliveryResult {
	result := DeliveryResult{Channel: c.Name(), Timestamp: time.Now().UTC()}

	if c.sender == nil || len(c.recipients) == 0 {
		result.Status = StatusSkipped
		result.Detail = "no sms recipients configured"
		return result
	}

	text := formatSMSText(alert)

	details := make([]string, 0, len(c.recipients))
	succeeded := 0
	for _, recipient := range c.recipients {
		if err := ctx.Err(); err != nil {
			details = append(details, fmt.Sprintf("%s: %v", recipient, err))
			continue
		}
		if err := c.sender.Send(recipient, text); err != nil {
			details = append(details, fmt.Sprintf("%s: %v", recipient, err))
		} else {
			details = append(details, fmt.Sprintf("%s: ok", recipient))
			succeeded++
		}
	}

	switch {
	case succeeded == len(c.recipients):
		result.Status = StatusSent
	case succeeded > 0:
		result.Status = StatusPartial
	default:
		result.Status = StatusFailed
	}
	result.Detail = strings.Join(details, "; ")
	return result
}

func formatSMSText(alert types.Alert) string {
	text := fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(alert.Severity)), alert.RuleID, alert.Message)
	if len(text) > smsMaxLength {
		text = text[:smsMaxLength]
	}
	return text
}
