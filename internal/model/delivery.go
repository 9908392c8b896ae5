package model

import (
	"time"

	"github.com/google/uuid"
)

// Payload is the JSON document handed to the service worker
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// DeliverySource tags what triggered a dispatch
type DeliverySource string

const (
	SourceScheduled DeliverySource = "scheduled"
	SourceTest      DeliverySource = "test"
	SourceSendNow   DeliverySource = "send-now"
)

// DeliveryRecord is one line of the append-only delivery log
type DeliveryRecord struct {
	ID       uuid.UUID      `json:"id"`
	At       time.Time      `json:"at"`
	Endpoint string         `json:"endpoint"`
	Source   DeliverySource `json:"source"`
	Outcome  string         `json:"outcome"`
	Error    string         `json:"error,omitempty"`
	Payload  Payload        `json:"payload"`
}

const endpointLogLength = 48

// NewDeliveryRecord builds a log record with a truncated endpoint
func NewDeliveryRecord(at time.Time, endpoint string, source DeliverySource, outcome string, payload Payload, err error) DeliveryRecord {
	rec := DeliveryRecord{
		ID:       uuid.New(),
		At:       at.UTC(),
		Endpoint: ShortEndpoint(endpoint),
		Source:   source,
		Outcome:  outcome,
		Payload:  payload,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}

// ShortEndpoint truncates an endpoint URL for logs
func ShortEndpoint(endpoint string) string {
	if len(endpoint) <= endpointLogLength {
		return endpoint
	}
	return endpoint[:endpointLogLength] + "…"
}
