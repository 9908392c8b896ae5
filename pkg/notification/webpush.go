package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/quocanhngo/memento/internal/model"
)

// WebPushConfig holds the VAPID identity used to sign push requests
type WebPushConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string // contact e-mail or https URL
	TTL        int
	Timeout    time.Duration
}

// WebPushTransport sends encrypted payloads to browser push services
type WebPushTransport struct {
	publicKey  string
	privateKey string
	subject    string
	ttl        int
	client     *http.Client
}

// NewWebPushTransport returns nil when no VAPID key pair is configured
func NewWebPushTransport(cfg WebPushConfig) *WebPushTransport {
	if cfg.PublicKey == "" || cfg.PrivateKey == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebPushTransport{
		publicKey:  cfg.PublicKey,
		privateKey: cfg.PrivateKey,
		// webpush-go adds the mailto: scheme itself
		subject: strings.TrimPrefix(cfg.Subject, "mailto:"),
		ttl:     cfg.TTL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *WebPushTransport) Name() string { return "webpush" }

func (t *WebPushTransport) Supports(sub model.Subscriber) bool {
	return sub.Credentials.HasWebPush()
}

// Send encrypts payload for the subscription and posts it to its endpoint.
// 404 and 410 mean the browser dropped the subscription.
func (t *WebPushTransport) Send(ctx context.Context, sub model.Subscriber, payload model.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	s := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Credentials.Keys.P256dh,
			Auth:   sub.Credentials.Keys.Auth,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, s, &webpush.Options{
		HTTPClient:      t.client,
		Subscriber:      t.subject,
		TTL:             t.ttl,
		Urgency:         webpush.UrgencyNormal,
		VAPIDPublicKey:  t.publicKey,
		VAPIDPrivateKey: t.privateKey,
	})
	if err != nil {
		return fmt.Errorf("web push request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: push service returned %d", ErrGone, resp.StatusCode)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
}
