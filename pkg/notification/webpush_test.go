package notification

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/quocanhngo/memento/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebPushTransport(t *testing.T) *WebPushTransport {
	t.Helper()
	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	tr := NewWebPushTransport(WebPushConfig{
		PublicKey:  pub,
		PrivateKey: priv,
		Subject:    "mailto:ops@example.com",
		TTL:        60,
		Timeout:    2 * time.Second,
	})
	require.NotNil(t, tr)
	return tr
}

func browserSubscriber(t *testing.T, endpoint string) model.Subscriber {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	return model.Subscriber{
		Endpoint: endpoint,
		Credentials: model.PushCredentials{Keys: &model.WebPushKeys{
			P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(auth),
		}},
	}
}

func TestNewWebPushTransportRequiresKeys(t *testing.T) {
	assert.Nil(t, NewWebPushTransport(WebPushConfig{PublicKey: "pub"}))
	assert.Nil(t, NewWebPushTransport(WebPushConfig{PrivateKey: "priv"}))
}

func TestWebPushTransportStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Outcome
	}{
		{"created", http.StatusCreated, Delivered},
		{"gone", http.StatusGone, Gone},
		{"not found", http.StatusNotFound, Gone},
		{"server error", http.StatusInternalServerError, Transient},
		{"rate limited", http.StatusTooManyRequests, Transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth, gotEncoding string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				gotEncoding = r.Header.Get("Content-Encoding")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			tr := newWebPushTransport(t)
			err := tr.Send(context.Background(), browserSubscriber(t, srv.URL+"/push/abc"),
				model.Payload{Title: "Memento Mori", Body: "hello", URL: "/"})

			assert.Equal(t, tt.want, Classify(err))
			assert.Contains(t, gotAuth, "vapid")
			assert.Equal(t, "aes128gcm", gotEncoding)
		})
	}
}

func TestWebPushTransportNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := srv.URL + "/push/closed"
	srv.Close()

	tr := newWebPushTransport(t)
	err := tr.Send(context.Background(), browserSubscriber(t, endpoint), model.Payload{})

	require.Error(t, err)
	assert.Equal(t, Transient, Classify(err))
}

func TestWebPushTransportSupports(t *testing.T) {
	tr := newWebPushTransport(t)
	assert.True(t, tr.Supports(browserSubscriber(t, "https://push.example/1")))
	assert.False(t, tr.Supports(model.Subscriber{Credentials: model.PushCredentials{FCMToken: "tok"}}))
}
