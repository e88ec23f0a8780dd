package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/sentinel/pkg/buffer"
	"github.com/c360/sentinel/types"
)

const (
	// dedupWindow suppresses repeat deliveries of the same logical alert.
	dedupWindow = 5 * time.Minute
	// dedupPurgeAge is how long a dedup entry may linger before the lazy
	// purge removes it.
	dedupPurgeAge = time.Hour
	// deliveryHistorySize caps the retained delivery records.
	deliveryHistorySize = 1000
)

// dedupKey identifies a logical alert for deduplication purposes.
type dedupKey struct {
	RuleID   string
	DeviceID string
	Severity types.Severity
}

// Dispatcher routes alerts to delivery channels, deduplicating repeats and
// keeping a bounded history of delivery outcomes.
type Dispatcher struct {
	channels map[string]Channel
	dedup    map[dedupKey]time.Time
	records  *buffer.Ring[DeliveryResult]
	logger   *slog.Logger

	now func() time.Time
}

// NewDispatcher creates a dispatcher over the given channels, keyed by
// channel name.
func NewDispatcher(logger *slog.Logger, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name()] = ch
	}
	return &Dispatcher{
		channels: byName,
		dedup:    make(map[dedupKey]time.Time),
		records:  buffer.NewRing[DeliveryResult](deliveryHistorySize),
		logger:   logger.With("component", "dispatcher"),
		now:      time.Now,
	}
}

// Notify delivers the alert on each named channel. A repeat of the same
// (rule, device, severity) inside the dedup window is dropped before any
// channel is attempted.
func (d *Dispatcher) Notify(ctx context.Context, alert types.Alert, channels []string) Summary {
	now := d.now()
	summary := Summary{AlertID: alert.ID, Timestamp: now.UTC()}

	d.purgeDedup(now)

	key := dedupKey{RuleID: alert.RuleID, DeviceID: alert.DeviceID, Severity: alert.Severity}
	if last, ok := d.dedup[key]; ok && now.Sub(last) < dedupWindow {
		summary.Deduplicated = true
		d.logger.Debug("alert deduplicated",
			"rule_id", alert.RuleID,
			"device_id", alert.DeviceID,
			"severity", alert.Severity)
		return summary
	}
	d.dedup[key] = now

	for _, name := range channels {
		ch, ok := d.channels[name]
		if !ok {
			result := DeliveryResult{
				Channel:   name,
				Status:    StatusSkipped,
				Detail:    "channel not configured",
				Timestamp: now.UTC(),
			}
			summary.Deliveries = append(summary.Deliveries, result)
			d.records.Append(result)
			continue
		}

		result := ch.Send(ctx, alert)
		summary.Deliveries = append(summary.Deliveries, result)
		d.records.Append(result)

		d.logger.Info("alert delivery",
			"alert_id", alert.ID,
			"rule_id", alert.RuleID,
			"channel", result.Channel,
			"status", result.Status,
			"severity", alert.Severity)
	}
	return summary
}

// purgeDedup lazily drops dedup entries past the purge age.
func (d *Dispatcher) purgeDedup(now time.Time) {
	for key, last := range d.dedup {
		if now.Sub(last) >= dedupPurgeAge {
			delete(d.dedup, key)
		}
	}
}

// DeliveryStats summarizes retained delivery records.
type DeliveryStats struct {
	Total     int              `json:"total"`
	ByChannel map[string]int   `json:"by_channel"`
	ByStatus  map[string]int   `json:"by_status"`
	Recent    []DeliveryResult `json:"recent,omitempty"`
}

// GetDeliveryStats reports counts over the retained delivery history,
// including the most recent records.
func (d *Dispatcher) GetDeliveryStats(recent int) DeliveryStats {
	items := d.records.Items()
	stats := DeliveryStats{
		Total:     len(items),
		ByChannel: make(map[string]int),
		ByStatus:  make(map[string]int),
	}
	for _, r := range items {
		stats.ByChannel[r.Channel]++
		stats.ByStatus[r.Status]++
	}
	if recent > 0 {
		stats.Recent = d.records.Last(recent)
	}
	return stats
}

// ClearDeliveryTracking drops all dedup state and delivery history.
func (d *Dispatcher) ClearDeliveryTracking() {
	d.dedup = make(map[dedupKey]time.Time)
	d.records.Clear()
}
