package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/sentinel/types"
)

// defaultWebhookTimeout bounds each individual POST.
const defaultWebhookTimeout = 5 * time.Second

// WebhookChannel posts the alert to every configured URL independently. The
// aggregate status is "sent" only when all URLs succeed; any mix of success
// and failure yields "partial", and all-failed yields "failed".
type WebhookChannel struct {
	poster  WebhookPoster
	urls    []string
	timeout time.Duration
}

// NewWebhookChannel creates a webhook channel. A nil poster falls back to a
// default net/http implementation; a zero timeout takes the 5s default.
func NewWebhookChannel(poster WebhookPoster, urls []string, timeout time.Duration) *WebhookChannel {
	if poster == nil {
		poster = &HTTPPoster{}
	}
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookChannel{poster: poster, urls: urls, timeout: timeout}
}

// Name implements Channel.
func (c *WebhookChannel) Name() string { return "webhook" }

// Send implements Channel.
func (c *WebhookChannel) Send(ctx context.Context, alert types.Alert) DeliveryResult {
	result := DeliveryResult{Channel: c.Name(), Timestamp: time.Now().UTC()}

	if len(c.urls) == 0 {
		result.Status = StatusSkipped
		result.Detail = "no urls configured"
		return result
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		result.Status = StatusFailed
		result.Detail = fmt.Sprintf("encode alert: %v", err)
		return result
	}

	var mu sync.Mutex
	details := make([]string, 0, len(c.urls))
	succeeded := 0

	// Each URL is posted independently under its own timeout; one URL's
	// failure never cancels the others.
	g := new(errgroup.Group)
	for _, url := range c.urls {
		url := url
		g.Go(func() error {
			postCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			err := c.poster.Post(postCtx, url, payload)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				details = append(details, fmt.Sprintf("%s: %v", url, err))
			} else {
				details = append(details, fmt.Sprintf("%s: ok", url))
				succeeded++
			}
			return nil
		})
	}
	_ = g.Wait() // goroutines record their own outcomes

	switch {
	case succeeded == len(c.urls):
		result.Status = StatusSent
	case succeeded > 0:
		result.Status = StatusPartial
	default:
		result.Status = StatusFailed
	}
	result.Detail = strings.Join(details, "; ")
	return result
}

// HTTPPoster is the default WebhookPoster backed by net/http.
type HTTPPoster struct {
	Client *http.Client
}

// Post sends the payload as JSON and treats any non-2xx response as failure.
func (p *HTTPPoster) Post(ctx context.Context, url string, payload []byte) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
