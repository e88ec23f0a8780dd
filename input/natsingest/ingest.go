// Package natsingest subscribes to the sensor event subject and feeds
// decoded events into the worker.
package natsingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/sentinel/errors"
	"github.com/c360/sentinel/natsclient"
	"github.com/c360/sentinel/types"
)

// EventSink receives decoded events. The worker implements it.
type EventSink interface {
	Submit(event types.SensorEvent) error
}

// Config names the subject carrying normalized sensor event JSON.
type Config struct {
	Subject string
}

// Ingest is the NATS ingestion component.
type Ingest struct {
	client  *natsclient.Client
	sink    EventSink
	subject string
	logger  *slog.Logger

	sub *nats.Subscription

	received  atomic.Uint64
	malformed atomic.Uint64
}

// New creates the ingest component.
func New(cfg Config, client *natsclient.Client, sink EventSink, logger *slog.Logger) *Ingest {
	if logger == nil {
		logger = slog.Default()
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "sensors.events"
	}
	return &Ingest{
		client:  client,
		sink:    sink,
		subject: subject,
		logger:  logger.With("component", "natsingest"),
	}
}

// Initialize validates collaborators.
func (i *Ingest) Initialize() error {
	if i.client == nil || i.sink == nil {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Ingest", "Initialize",
			"missing client or sink")
	}
	return nil
}

// Start subscribes to the event subject.
func (i *Ingest) Start(_ context.Context) error {
	if i.sub != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Ingest", "Start", "check ingest state")
	}

	sub, err := i.client.Subscribe(i.subject, i.handleMessage)
	if err != nil {
		return errors.Wrap(err, "Ingest", "Start", "subscribe failed")
	}
	i.sub = sub
	i.logger.Info("ingest subscribed", "subject", i.subject)
	return nil
}

// Stop drains the subscription.
func (i *Ingest) Stop(_ time.Duration) error {
	if i.sub == nil {
		return nil
	}
	err := i.sub.Drain()
	i.sub = nil
	if err != nil {
		return errors.WrapTransient(err, "Ingest", "Stop", "drain failed")
	}
	i.logger.Info("ingest stopped",
		"received", i.received.Load(),
		"malformed", i.malformed.Load())
	return nil
}

func (i *Ingest) handleMessage(msg *nats.Msg) {
	i.received.Add(1)

	var event types.SensorEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		i.malformed.Add(1)
		i.logger.Warn("malformed sensor event", "subject", msg.Subject, "error", err)
		return
	}
	if event.DeviceID == "" {
		i.malformed.Add(1)
		i.logger.Warn("sensor event missing device_id", "subject", msg.Subject)
		return
	}

	if err := i.sink.Submit(event); err != nil {
		i.logger.Warn("event not accepted", "device_id", event.DeviceID, "error", err)
	}
}

// Counts reports received and malformed message totals.
func (i *Ingest) Counts() (received, malformed uint64) {
	return i.received.Load(), i.malformed.Load()
}
