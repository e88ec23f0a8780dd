package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/c360/sentinel/types"
)

// EmailChannel formats a subject and body and hands them to the injected
// sender. Delivery failure is captured into the result, not propagated.
type EmailChannel struct {
	sender     EmailSender
	recipients []string
}

// NewEmailChannel creates an email channel for the given recipients.
func NewEmailChannel(sender EmailSender, recipients []string) *EmailChannel {
	return &EmailChannel{sender: sender, recipients: recipients}
}

// Name implements Channel.
func (c *EmailChannel) Name() string { return "email" }

// Send implements Channel.
func (c *EmailChannel) Send(_ context.Context, alert types.Alert) DeliveryResult {
	result := DeliveryResult{Channel: c.Name(), Timestamp: time.Now().UTC()}

	if c.sender == nil || len(c.recipients) == 0 {
		result.Status = StatusSkipped
		result.Detail = "no sender or recipients configured"
		return result
	}

	subject := fmt.Sprintf("[%s] Sentinel alert: %s",
		strings.ToUpper(string(alert.Severity)), alert.RuleID)
	body := formatEmailBody(alert)

	if err := c.sender.Send(c.recipients, subject, body); err != nil {
		result.Status = StatusFailed
		result.Detail = err.Error()
		return result
	}

	result.Status = StatusSent
	result.Detail = fmt.Sprintf("%d recipients", len(c.recipients))
	return result
}

func formatEmailBody(alert types.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", alert.Message)
	fmt.Fprintf(&b, "Rule:        %s\n", alert.RuleID)
	fmt.Fprintf(&b, "Severity:    %s\n", alert.Severity)
	fmt.Fprintf(&b, "Device:      %s\n", alert.DeviceID)
	if alert.SensorType != "" {
		fmt.Fprintf(&b, "Sensor type: %s\n", alert.SensorType)
	}
	if alert.Location != "" {
		fmt.Fprintf(&b, "Location:    %s\n", alert.Location)
	}
	fmt.Fprintf(&b, "Value:       %g\n", alert.Value)
	fmt.Fprintf(&b, "Time:        %s\n", alert.Timestamp.Format(time.RFC3339))
	return b.String()
}
