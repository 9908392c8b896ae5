package notification

import (
	"context"
	"fmt"
	"net/url"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/quocanhngo/memento/internal/model"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

type fcmSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMConfig selects the Firebase service account and bounds each send
type FCMConfig struct {
	CredentialsFile string // empty disables FCM
	Timeout         time.Duration
}

// FCMTransport delivers to Firebase Cloud Messaging registration tokens
type FCMTransport struct {
	client  fcmSender
	timeout time.Duration
}

// NewFCMTransport initializes Firebase from a service account file. It returns
// nil when no credentials are provided or Firebase cannot be initialized, so a
// bad FCM setup never blocks startup.
func NewFCMTransport(ctx context.Context, cfg FCMConfig, log logrus.FieldLogger) *FCMTransport {
	if cfg.CredentialsFile == "" {
		log.Warn("⚠️ Firebase credentials not provided, FCM delivery disabled")
		return nil
	}

	opt := option.WithCredentialsFile(cfg.CredentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		log.WithError(err).Warn("⚠️ Failed to initialize Firebase app, FCM delivery disabled")
		return nil
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		log.WithError(err).Warn("⚠️ Failed to get messaging client, FCM delivery disabled")
		return nil
	}

	log.Info("✅ Firebase FCM initialized")
	return newFCMTransport(client, cfg.Timeout)
}

func newFCMTransport(client fcmSender, timeout time.Duration) *FCMTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FCMTransport{client: client, timeout: timeout}
}

func (t *FCMTransport) Name() string { return "fcm" }

func (t *FCMTransport) Supports(sub model.Subscriber) bool {
	return sub.Credentials.HasFCM()
}

// Send pushes payload to the subscriber's registration token. Unregistered
// tokens and sender mismatches are permanent.
func (t *FCMTransport) Send(ctx context.Context, sub model.Subscriber, payload model.Payload) error {
	message := &messaging.Message{
		Token: sub.Credentials.FCMToken,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: map[string]string{
			"type": "daily_reminder",
			"url":  payload.URL,
		},
		Android: &messaging.AndroidConfig{
			Priority: "normal",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}
	// FCM only accepts absolute https click links; relative paths stay in Data
	if isHTTPSLink(payload.URL) {
		message.Webpush = &messaging.WebpushConfig{
			FCMOptions: &messaging.WebpushFCMOptions{Link: payload.URL},
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if _, err := t.client.Send(ctx, message); err != nil {
		if messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err) {
			return fmt.Errorf("%w: %v", ErrGone, err)
		}
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}

func isHTTPSLink(link string) bool {
	u, err := url.Parse(link)
	return err == nil && u.Scheme == "https" && u.Host != ""
}
