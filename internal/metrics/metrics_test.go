package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestRecordDispatch(t *testing.T) {
	c := dispatches.WithLabelValues("scheduled", "gone")
	before := counterValue(t, c)

	RecordDispatch("scheduled", "gone")
	RecordDispatch("scheduled", "gone")

	assert.Equal(t, before+2, counterValue(t, c))
}

func TestRecordTick(t *testing.T) {
	c := ticks.WithLabelValues(TickLocked)
	before := counterValue(t, c)

	RecordTick(TickLocked, 3*time.Millisecond)

	assert.Equal(t, before+1, counterValue(t, c))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordHTTPRequest("GET", "/api/push/public-key", "200", time.Millisecond)
	SetSnapshot(3, 1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `memento_http_requests_total{method="GET",path="/api/push/public-key",status="200"}`)
	assert.Contains(t, string(body), "memento_scheduler_due_subscribers 1")
	assert.Contains(t, string(body), "memento_store_subscribers 3")
}
