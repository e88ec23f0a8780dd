// Package notify delivers alerts across heterogeneous channels with
// per-channel best-effort semantics: one channel's failure never aborts
// another, and every outcome is captured into a delivery summary rather than
// propagated. The dispatcher deduplicates alerts and keeps a bounded record
// ring for observability only.
package notify

import (
	"context"
	"time"

	"github.com/c360/sentinel/types"
)

// Delivery statuses.
const (
	StatusSent           = "sent"
	StatusFailed         = "failed"
	StatusSkipped        = "skipped"
	StatusPartial        = "partial"
	StatusNotImplemented = "not_implemented"
)

// DeliveryResult is the outcome of one channel's delivery attempt.
type DeliveryResult struct {
	Channel   string    `json:"channel"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary reports what the dispatcher did with one alert.
type Summary struct {
	AlertID      string           `json:"alert_id"`
	Timestamp    time.Time        `json:"timestamp"`
	Deliveries   []DeliveryResult `json:"deliveries"`
	Deduplicated bool             `json:"deduplicated,omitempty"`
}

// Channel is a named notification transport. Send must capture failures into
// the returned result, never panic, and respect the context deadline.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert types.Alert) DeliveryResult
}

// EmailSender is the narrow interface to the external email collaborator.
type EmailSender interface {
	Send(recipients []string, subject, body string) error
}

// SMSSender is the narrow interface to the external SMS collaborator.
// Delivery is per recipient so individual outcomes can be recorded.
type SMSSender interface {
	Send(recipient, text string) error
}

// WebhookPoster is the narrow interface to the HTTP POST collaborator.
type WebhookPoster interface {
	Post(ctx context.Context, url string, payload []byte) error
}
