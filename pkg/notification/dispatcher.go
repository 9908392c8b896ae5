package notification

import (
	"context"
	"errors"

	"github.com/quocanhngo/memento/internal/model"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrGone is wrapped by transports when the push service reports that the
	// subscription no longer exists
	ErrGone = errors.New("push subscription gone")

	// ErrNoTransport is returned when no configured transport can reach a subscriber
	ErrNoTransport = errors.New("no push transport for subscriber")
)

// Outcome classifies a single dispatch
type Outcome string

const (
	Delivered Outcome = "delivered"
	Gone      Outcome = "gone"
	Transient Outcome = "transient"
)

// Transport delivers one payload to one subscriber
type Transport interface {
	Name() string
	Supports(sub model.Subscriber) bool
	Send(ctx context.Context, sub model.Subscriber, payload model.Payload) error
}

// Target pairs a subscriber with the payload to send it
type Target struct {
	Subscriber model.Subscriber
	Payload    model.Payload
}

// Result is the classified outcome of one dispatch
type Result struct {
	Endpoint string
	Outcome  Outcome
	Err      error
}

// Dispatcher routes payloads to the first transport that supports a subscriber
type Dispatcher struct {
	transports []Transport
	log        logrus.FieldLogger
}

// NewDispatcher creates a dispatcher; transports are tried in order
func NewDispatcher(log logrus.FieldLogger, transports ...Transport) *Dispatcher {
	return &Dispatcher{transports: transports, log: log}
}

// Enabled reports whether at least one transport is configured
func (d *Dispatcher) Enabled() bool {
	return len(d.transports) > 0
}

// Send delivers payload to sub. It never retries; the transport's own
// timeout bounds the call.
func (d *Dispatcher) Send(ctx context.Context, sub model.Subscriber, payload model.Payload) Result {
	res := Result{Endpoint: sub.Endpoint}

	transport := d.route(sub)
	if transport == nil {
		res.Outcome, res.Err = Transient, ErrNoTransport
		d.logResult(sub, "", res)
		return res
	}

	err := transport.Send(ctx, sub, payload)
	res.Outcome, res.Err = Classify(err), err
	d.logResult(sub, transport.Name(), res)
	return res
}

// SendAll dispatches every target concurrently, at most limit at a time.
// Results are returned in target order.
func (d *Dispatcher) SendAll(ctx context.Context, targets []Target, limit int) []Result {
	results := make([]Result, len(targets))
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, target := range targets {
		g.Go(func() error {
			results[i] = d.Send(ctx, target.Subscriber, target.Payload)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Classify maps a transport error to an Outcome
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Delivered
	case errors.Is(err, ErrGone):
		return Gone
	default:
		return Transient
	}
}

func (d *Dispatcher) route(sub model.Subscriber) Transport {
	for _, t := range d.transports {
		if t.Supports(sub) {
			return t
		}
	}
	return nil
}

func (d *Dispatcher) logResult(sub model.Subscriber, transport string, res Result) {
	entry := d.log.WithFields(logrus.Fields{
		"endpoint":  model.ShortEndpoint(sub.Endpoint),
		"transport": transport,
		"outcome":   res.Outcome,
	})
	switch res.Outcome {
	case Delivered:
		entry.Debug("✅ Push delivered")
	case Gone:
		entry.Info("🗑️  Push endpoint gone")
	default:
		entry.WithError(res.Err).Warn("⚠️  Push delivery failed")
	}
}
