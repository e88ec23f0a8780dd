package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sentinel/types"
)

type fakeEmailSender struct {
	mu    sync.Mutex
	calls int
	err   error

	lastSubject string
	lastBody    string
}

func (s *fakeEmailSender) Send(_ []string, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastSubject = subject
	s.lastBody = body
	return s.err
}

type fakeSMSSender struct {
	mu    sync.Mutex
	texts []string
	fail  map[string]error
}

func (s *fakeSMSSender) Send(recipient, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[recipient]; ok {
		return err
	}
	s.texts = append(s.texts, text)
	return nil
}

type fakePoster struct {
	mu    sync.Mutex
	posts []string
	fail  map[string]error
	delay map[string]time.Duration
}

func (p *fakePoster) Post(ctx context.Context, url string, _ []byte) error {
	p.mu.Lock()
	delay := p.delay[url]
	err := p.fail[url]
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.posts = append(p.posts, url)
	p.mu.Unlock()
	return nil
}

func testAlert() types.Alert {
	return types.Alert{
		ID:       "a-1",
		RuleID:   "gas_critical",
		Severity: types.SeverityCritical,
		DeviceID: "plc-01",
		Value:    612,
		Message:  "CRITICAL: gas_critical - gas_concentration > 500 (value: 612)",
		Detector: "threshold",
	}
}

func TestEmailChannelSend(t *testing.T) {
	sender := &fakeEmailSender{}
	ch := NewEmailChannel(sender, []string{"ops@example.com"})

	result := ch.Send(context.Background(), testAlert())

	assert.Equal(t, StatusSent, result.Status)
	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, "[CRITICAL] Sentinel alert: gas_critical", sender.lastSubject)
	assert.Contains(t, sender.lastBody, "plc-01")
}

func TestEmailChannelSkippedWhenUnconfigured(t *testing.T) {
	ch := NewEmailChannel(&fakeEmailSender{}, nil)

	result := ch.Send(context.Background(), testAlert())

	assert.Equal(t, StatusSkipped, result.Status)
}

func TestEmailChannelFailure(t *testing.T) {
	sender := &fakeEmailSender{err: errors.New("smtp refused")}
	ch := NewEmailChannel(sender, []string{"ops@example.com"})

	result := ch.Send(context.Background(), testAlert())

	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Detail, "smtp refused")
}

func TestSMSChannelTruncatesAt160(t *testing.T) {
	sender := &fakeSMSSender{}
	ch := NewSMSChannel(sender, []string{"+15550001111"})

	alert := testAlert()
	alert.Message = strings.Repeat("z", 300)
	result := ch.Send(context.Background(), alert)

	require.Equal(t, StatusSent, result.Status)
	require.Len(t, sender.texts, 1)
	assert.Len(t, sender.texts[0], 160)
}

func TestSMSChannelPartial(t *testing.T) {
	sender := &fakeSMSSender{fail: map[string]error{"+2": errors.New("carrier error")}}
	ch := NewSMSChannel(sender, []string{"+1", "+2"})

	result := ch.Send(context.Background(), testAlert())

	assert.Equal(t, StatusPartial, result.Status)
	assert.Contains(t, result.Detail, "carrier error")
}

func TestWebhookChannelAllSucceed(t *testing.T) {
	poster := &fakePoster{}
	ch := NewWebhookChannel(poster, []string{"http://a", "http://b"}, time.Second)

	result := ch.Send(context.Background(), testAlert())

	assert.Equal(t, StatusSent, result.Status)
	assert.Len(t, poster.posts, 2)
}

func TestWebhookChannelPartialOnTimeout(t *testing.T) {
	poster := &fakePoster{delay: map[string]time.Duration{"http://slow": time.Second}}
	ch := NewWebhookChannel(poster, []string{"http://fast", "http://slow"}, 50*time.Millisecond)

	result := ch.Send(context.Background(), testAlert())

	assert.Equal(t, StatusPartial, result.Status)
	assert.Contains(t, result.Detail, "http://fast: ok")
	assert.Contains(t, result.Detail, "http://slow")
}

func TestWebhookChannelAllFail(t *testing.T) {
	poster := &fakePoster{fail: map[string]error{"http://a": errors.New("refused")}}
	ch := NewWebhookChannel(poster, []string{"http://a"}, time.Second)

	result := ch.Send(context.Background(), testAlert())

	assert.Equal(t, StatusFailed, result.Status)
}

func TestPushChannelNotImplemented(t *testing.T) {
	ch := NewPushChannel()

	result := ch.Send(context.Background(), testAlert())

	assert.Equal(t, StatusNotImplemented, result.Status)
}

func TestDispatcherDeduplicates(t *testing.T) {
	sender := &fakeEmailSender{}
	d := NewDispatcher(nil, NewEmailChannel(sender, []string{"ops@example.com"}))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	d.now = func() time.Time { return now }

	first := d.Notify(context.Background(), testAlert(), []string{"email"})
	require.False(t, first.Deduplicated)
	require.Len(t, first.Deliveries, 1)

	now = base.Add(2 * time.Minute)
	second := d.Notify(context.Background(), testAlert(), []string{"email"})
	assert.True(t, second.Deduplicated)
	assert.Empty(t, second.Deliveries)
	assert.Equal(t, 1, sender.calls)

	// Past the window the same alert delivers again.
	now = base.Add(2*time.Minute + dedupWindow)
	third := d.Notify(context.Background(), testAlert(), []string{"email"})
	assert.False(t, third.Deduplicated)
	assert.Equal(t, 2, sender.calls)
}

func TestDispatcherDedupKeyIncludesSeverity(t *testing.T) {
	sender := &fakeEmailSender{}
	d := NewDispatcher(nil, NewEmailChannel(sender, []string{"ops@example.com"}))

	a := testAlert()
	d.Notify(context.Background(), a, []string{"email"})

	a.Severity = types.SeverityWarning
	summary := d.Notify(context.Background(), a, []string{"email"})

	assert.False(t, summary.Deduplicated)
	assert.Equal(t, 2, sender.calls)
}

func TestDispatcherUnconfiguredChannelSkipped(t *testing.T) {
	d := NewDispatcher(nil)

	summary := d.Notify(context.Background(), testAlert(), []string{"sms"})

	require.Len(t, summary.Deliveries, 1)
	assert.Equal(t, StatusSkipped, summary.Deliveries[0].Status)
	assert.Equal(t, "sms", summary.Deliveries[0].Channel)
}

func TestDispatcherStatsAndClear(t *testing.T) {
	email := NewEmailChannel(&fakeEmailSender{}, []string{"ops@example.com"})
	d := NewDispatcher(nil, email, NewPushChannel())

	d.Notify(context.Background(), testAlert(), []string{"email", "push"})

	stats := d.GetDeliveryStats(10)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByChannel["email"])
	assert.Equal(t, 1, stats.ByStatus[StatusSent])
	assert.Equal(t, 1, stats.ByStatus[StatusNotImplemented])
	assert.Len(t, stats.Recent, 2)

	d.ClearDeliveryTracking()
	assert.Zero(t, d.GetDeliveryStats(0).Total)

	// Dedup state was cleared too.
	summary := d.Notify(context.Background(), testAlert(), []string{"email"})
	assert.False(t, summary.Deduplicated)
}

func TestDispatcherPurgesStaleDedupEntries(t *testing.T) {
	d := NewDispatcher(nil, NewPushChannel())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	d.now = func() time.Time { return now }

	d.Notify(context.Background(), testAlert(), []string{"push"})
	require.Len(t, d.dedup, 1)

	now = base.Add(dedupPurgeAge + time.Second)
	other := testAlert()
	other.RuleID = "other_rule"
	d.Notify(context.Background(), other, []string{"push"})

	_, stale := d.dedup[dedupKey{RuleID: "gas_critical", DeviceID: "plc-01", Severity: types.SeverityCritical}]
	assert.False(t, stale)
}
