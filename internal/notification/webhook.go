package notification

import (
	"context"
	"time"

	"trading-enginev1/internal/logger"
)

// WebhookNotifier POSTs alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url  string
	http poster
	now  func() time.Time
}

// webhookPayload is the body sent for each alert. TickID is set when the
// alert was raised while processing a tick.
type webhookPayload struct {
	Alert
	TickID string `json:"tick_id,omitempty"`
	Time   string `json:"ts"`
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{url: url, http: newPoster("webhook"), now: time.Now}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	return w.http.post(ctx, w.url, webhookPayload{
		Alert:  alert,
		TickID: logger.TickID(ctx),
		Time:   w.now().UTC().Format(time.RFC3339Nano),
	})
}
