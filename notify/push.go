package notify

import (
	"context"
	"time"

	"github.com/c360/sentinel/types"
)

// PushChannel is a placeholder for mobile push delivery. It records every
// attempt with a not_implemented status so delivery history stays complete.
type PushChannel struct{}

// NewPushChannel creates the push placeholder channel.
func NewPushChannel() *PushChannel { return &PushChannel{} }

// Name implements Channel.
func (c *PushChannel) Name() string { return "push" }

// Send implements Channel.
func (c *PushChannel) Send(_ context.Context, _ types.Alert) DeliveryResult {
	return DeliveryResult{
		Channel:   c.Name(),
		Status:    StatusNotImplemented,
		Detail:    "push delivery is not implemented",
		Timestamp: time.Now().UTC(),
	}
}
