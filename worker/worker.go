// Package worker runs the event pipeline: rule matching, threshold
// evaluation, anomaly detection and cross-sensor correlation, with alert
// dispatch moved off the hot path onto a bounded queue.
package worker

import (
	"context"
	"log/slog"
	"math"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/c360/sentinel/errors"
	"github.com/c360/sentinel/metric"
	"github.com/c360/sentinel/notify"
	"github.com/c360/sentinel/processor/anomaly"
	"github.com/c360/sentinel/processor/correlation"
	"github.com/c360/sentinel/processor/threshold"
	"github.com/c360/sentinel/rules"
	"github.com/c360/sentinel/statestore"
	"github.com/c360/sentinel/types"
)

// Config tunes queue sizes and background maintenance.
type Config struct {
	QueueSize            int
	DispatchQueueSize    int
	DefaultChannels      []string
	SnapshotInterval     time.Duration
	SensorFailureTimeout time.Duration
	SlowEventThreshold   time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.DispatchQueueSize <= 0 {
		c.DispatchQueueSize = 256
	}
	if len(c.DefaultChannels) == 0 {
		c.DefaultChannels = []string{"email"}
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = 30 * time.Second
	}
	if c.SensorFailureTimeout <= 0 {
		c.SensorFailureTimeout = 5 * time.Minute
	}
	if c.SlowEventThreshold <= 0 {
		c.SlowEventThreshold = time.Second
	}
	return c
}

// Dispatcher is the narrow delivery collaborator.
type Dispatcher interface {
	Notify(ctx context.Context, alert types.Alert, channels []string) notify.Summary
}

// Deps are the worker's collaborators. Rules, Anomaly, Correlation and
// Dispatcher are required; State and Metrics may be nil.
type Deps struct {
	Rules       *rules.Store
	Anomaly     *anomaly.Detector
	Correlation *correlation.Tracker
	Dispatcher  Dispatcher
	State       statestore.Store
	Metrics     *metric.Metrics
	Logger      *slog.Logger
}

type dispatchJob struct {
	alert    types.Alert
	channels []string
}

// Worker consumes submitted events through the pipeline and feeds raised
// alerts to the dispatcher asynchronously.
type Worker struct {
	cfg         Config
	rules       *rules.Store
	threshold   *threshold.Evaluator
	anomaly     *anomaly.Detector
	correlation *correlation.Tracker
	dispatcher  Dispatcher
	state       statestore.Store
	metrics     *metric.Metrics
	logger      *slog.Logger

	events    chan types.SensorEvent
	dispatchQ chan dispatchJob
	shutdown  chan struct{}
	done      chan struct{}

	processed  atomic.Uint64
	failed     atomic.Uint64
	dropped    atomic.Uint64
	dispatched atomic.Uint64
	epsBits    atomic.Uint64

	started atomic.Bool
}

// New creates a worker. The threshold evaluator is owned here so its alerts
// flow through the same dispatch queue as every other detector's.
func New(cfg Config, deps Deps) *Worker {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		cfg:         cfg.withDefaults(),
		rules:       deps.Rules,
		anomaly:     deps.Anomaly,
		correlation: deps.Correlation,
		dispatcher:  deps.Dispatcher,
		state:       deps.State,
		metrics:     deps.Metrics,
		logger:      logger.With("component", "worker"),
	}
	w.threshold = threshold.New(w)
	return w
}

// Initialize validates collaborators and allocates the queues.
func (w *Worker) Initialize() error {
	if w.rules == nil || w.anomaly == nil || w.correlation == nil || w.dispatcher == nil {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Worker", "Initialize",
			"missing required collaborator")
	}
	w.events = make(chan types.SensorEvent, w.cfg.QueueSize)
	w.dispatchQ = make(chan dispatchJob, w.cfg.DispatchQueueSize)
	return nil
}

// Start launches the pipeline, dispatch and maintenance goroutines.
func (w *Worker) Start(ctx context.Context) error {
	if w.events == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Worker", "Start", "not initialized")
	}
	if !w.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Worker", "Start", "check worker state")
	}

	w.shutdown = make(chan struct{})
	w.done = make(chan struct{})
	dispatchDone := make(chan struct{})
	maintDone := make(chan struct{})

	go w.dispatchLoop(ctx, dispatchDone)
	go w.maintenanceLoop(ctx, maintDone)
	go w.run(ctx, dispatchDone, maintDone)

	w.logger.Info("worker started",
		"queue_size", w.cfg.QueueSize,
		"dispatch_queue_size", w.cfg.DispatchQueueSize)
	return nil
}

// Stop drains in-flight events and waits for the pipeline to finish, up to
// the timeout.
func (w *Worker) Stop(timeout time.Duration) error {
	if !w.started.CompareAndSwap(true, false) {
		return nil
	}
	close(w.shutdown)

	select {
	case <-w.done:
		w.logger.Info("worker stopped",
			"processed", w.processed.Load(),
			"failed", w.failed.Load(),
			"alerts_dispatched", w.dispatched.Load())
		return nil
	case <-time.After(timeout):
		w.logger.Warn("worker shutdown timed out", "timeout", timeout)
		return errors.WrapTransient(context.DeadlineExceeded, "Worker", "Stop", "drain timed out")
	}
}

// Submit enqueues an event for processing. A full queue drops the event and
// returns a transient error rather than blocking the caller.
func (w *Worker) Submit(event types.SensorEvent) error {
	if w.metrics != nil {
		w.metrics.EventsReceived.Inc()
	}
	select {
	case w.events <- event:
		return nil
	default:
		w.dropped.Add(1)
		if w.metrics != nil {
			w.metrics.EventsProcessed.WithLabelValues("dropped").Inc()
		}
		return errors.WrapTransient(errors.ErrQueueFull, "Worker", "Submit", "event queue full")
	}
}

// Dispatch implements threshold.Notifier by queueing the alert for async
// delivery.
func (w *Worker) Dispatch(alert types.Alert, channels []string) {
	w.enqueueAlert(alert, channels)
}

func (w *Worker) enqueueAlert(alert types.Alert, channels []string) {
	if len(channels) == 0 {
		channels = w.cfg.DefaultChannels
	}
	if w.metrics != nil {
		w.metrics.AlertsTotal.WithLabelValues(alert.Detector, string(alert.Severity)).Inc()
	}
	select {
	case w.dispatchQ <- dispatchJob{alert: alert, channels: channels}:
	default:
		w.logger.Warn("dispatch queue full, alert dropped",
			"rule_id", alert.RuleID,
			"device_id", alert.DeviceID,
			"severity", alert.Severity)
	}
	if w.metrics != nil {
		w.metrics.DispatchQueueDepth.Set(float64(len(w.dispatchQ)))
	}
}

// run consumes the event queue until shutdown, then drains what is buffered.
// The dispatch queue is closed only after the maintenance loop has exited so
// nothing enqueues into a closed channel.
func (w *Worker) run(ctx context.Context, dispatchDone, maintDone chan struct{}) {
	defer close(w.done)

	for {
		select {
		case event := <-w.events:
			w.processEvent(ctx, event)
		case <-w.shutdown:
			w.finish(ctx, dispatchDone, maintDone)
			return
		case <-ctx.Done():
			w.finish(ctx, dispatchDone, maintDone)
			return
		}
	}
}

func (w *Worker) finish(ctx context.Context, dispatchDone, maintDone chan struct{}) {
	w.drainEvents(ctx)
	<-maintDone
	close(w.dispatchQ)
	<-dispatchDone
}

func (w *Worker) drainEvents(ctx context.Context) {
	for {
		select {
		case event := <-w.events:
			w.processEvent(ctx, event)
		default:
			return
		}
	}
}

// dispatchLoop delivers queued alerts until the queue is closed and drained.
func (w *Worker) dispatchLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for job := range w.dispatchQ {
		summary := w.dispatcher.Notify(ctx, job.alert, job.channels)
		if !summary.Deduplicated {
			w.dispatched.Add(1)
		}
		if w.metrics != nil {
			for _, delivery := range summary.Deliveries {
				w.metrics.DeliveriesTotal.WithLabelValues(delivery.Channel, delivery.Status).Inc()
			}
			w.metrics.DispatchQueueDepth.Set(float64(len(w.dispatchQ)))
		}
	}
}

// processEvent runs one event through the full pipeline. A panic in any
// stage is contained to that event.
func (w *Worker) processEvent(ctx context.Context, event types.SensorEvent) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			w.failed.Add(1)
			if w.metrics != nil {
				w.metrics.EventsProcessed.WithLabelValues("panic").Inc()
			}
			w.logger.Error("panic while processing event",
				"device_id", event.DeviceID,
				"sensor_type", event.SensorType,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	matched := w.rules.ForEvent(&event)
	thresholdAlerts := w.threshold.Evaluate(&event, matched)

	maxSeverity := types.Severity("")
	for _, a := range thresholdAlerts {
		if a.Severity.Rank() > maxSeverity.Rank() {
			maxSeverity = a.Severity
		}
	}

	for _, a := range w.anomaly.Process(&event) {
		if a.Severity.Rank() > maxSeverity.Rank() {
			maxSeverity = a.Severity
		}
		w.enqueueAlert(a, a.Channels)
	}

	for _, a := range w.correlation.Process(&event, maxSeverity) {
		w.enqueueAlert(a, a.Channels)
	}

	w.processed.Add(1)
	elapsed := time.Since(start)
	if w.metrics != nil {
		w.metrics.EventsProcessed.WithLabelValues("ok").Inc()
		w.metrics.ProcessingDuration.Observe(elapsed.Seconds())
	}
	if elapsed > w.cfg.SlowEventThreshold {
		w.logger.Warn("slow event",
			"device_id", event.DeviceID,
			"sensor_type", event.SensorType,
			"elapsed", elapsed)
	}

	if w.state != nil {
		if err := w.state.AppendEvent(ctx, event); err != nil {
			w.logger.Debug("recent-event write failed", "error", err)
		}
	}
}

// maintenanceLoop updates the rolling rate, persists snapshots and checks
// for silent sensors.
func (w *Worker) maintenanceLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	rateTicker := time.NewTicker(time.Second)
	defer rateTicker.Stop()
	snapshotTicker := time.NewTicker(w.cfg.SnapshotInterval)
	defer snapshotTicker.Stop()

	failureInterval := w.cfg.SensorFailureTimeout / 2
	if failureInterval < time.Second {
		failureInterval = time.Second
	}
	failureTicker := time.NewTicker(failureInterval)
	defer failureTicker.Stop()

	var lastProcessed uint64
	for {
		select {
		case <-rateTicker.C:
			current := w.processed.Load()
			eps := float64(current - lastProcessed)
			lastProcessed = current
			w.epsBits.Store(math.Float64bits(eps))
			if w.metrics != nil {
				w.metrics.EventsPerSecond.Set(eps)
			}
		case <-snapshotTicker.C:
			w.saveSnapshot(ctx)
		case <-failureTicker.C:
			for _, a := range w.anomaly.CheckSensorFailures(w.cfg.SensorFailureTimeout) {
				w.enqueueAlert(a, a.Channels)
			}
		case <-w.shutdown:
			w.saveSnapshot(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) saveSnapshot(ctx context.Context) {
	if w.state == nil {
		return
	}
	ruleStats := w.rules.GetStats()
	if w.metrics != nil {
		w.metrics.RulesEnabled.Set(float64(ruleStats.Enabled))
	}
	snap := statestore.Snapshot{
		Timestamp:        time.Now().UTC(),
		EventsProcessed:  w.processed.Load(),
		EventsFailed:     w.failed.Load(),
		AlertsDispatched: w.dispatched.Load(),
		EventsPerSecond:  w.EventsPerSecond(),
		RulesTotal:       ruleStats.Total,
		RulesEnabled:     ruleStats.Enabled,
		Occupancy:        w.correlation.OccupancySnapshot(),
	}
	if err := w.state.SaveSnapshot(ctx, snap); err != nil {
		w.logger.Warn("snapshot write failed", "error", err)
	}
}

// EventsPerSecond reports the rate measured over the last tick.
func (w *Worker) EventsPerSecond() float64 {
	return math.Float64frombits(w.epsBits.Load())
}

// Stats is a point-in-time view of worker counters.
type Stats struct {
	Processed        uint64  `json:"processed"`
	Failed           uint64  `json:"failed"`
	Dropped          uint64  `json:"dropped"`
	AlertsDispatched uint64  `json:"alerts_dispatched"`
	EventsPerSecond  float64 `json:"events_per_second"`
	QueueDepth       int     `json:"queue_depth"`
}

// GetStats returns the current counters.
func (w *Worker) GetStats() Stats {
	return Stats{
		Processed:        w.processed.Load(),
		Failed:           w.failed.Load(),
		Dropped:          w.dropped.Load(),
		AlertsDispatched: w.dispatched.Load(),
		EventsPerSecond:  w.EventsPerSecond(),
		QueueDepth:       len(w.events),
	}
}
