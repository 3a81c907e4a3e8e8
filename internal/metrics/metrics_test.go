package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstancesDoNotCollide(t *testing.T) {
	a := New()
	b := New()

	a.MessageAppended("TEXT")
	a.MessageAppended("TEXT")
	b.MessageAppended("IMAGE")

	assert.Equal(t, float64(2), testutil.ToFloat64(a.MessagesAppendedTotal.WithLabelValues("TEXT")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.MessagesAppendedTotal.WithLabelValues("TEXT")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.MessageAppended("TEXT")
	m.ConversationCreated()
	m.RateLimited("chat:message")
	m.Upload("image", "ok")
	m.WebsocketOpened()
	m.WebsocketClosed()
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.ConversationCreated()
	m.RateLimited("chat:message")
	m.ObserveRequest("GET", "/api/chat/conversations", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mentorchat_conversations_created_total 1")
	assert.Contains(t, string(body), `mentorchat_rate_limited_total{scope="chat:message"} 1`)
	assert.Contains(t, string(body), `mentorchat_http_requests_total{method="GET",route="/api/chat/conversations",status="200"} 1`)
}
