package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dshills/exthost/internal/config"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestInit_Disabled(t *testing.T) {
	p, err := Init(context.Background(), config.TelemetryConfig{ServiceName: "exthost"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, span := p.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_EnabledWithoutExporter(t *testing.T) {
	p, err := Init(context.Background(), config.TelemetryConfig{
		Enabled:     true,
		ServiceName: "exthost",
		SampleRatio: 1,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, span := p.Tracer("test").Start(context.Background(), "sampled")
	assert.True(t, span.SpanContext().IsSampled())
	span.End()
}

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics()

	m.RequestDone(protocol.MethodHover, 2, 10*time.Millisecond, nil)
	m.RequestDone(protocol.MethodHover, 1, time.Millisecond, protocol.ErrRequestCancelled)
	m.ProviderDone(protocol.MethodHover, "gopher", 5*time.Millisecond, context.DeadlineExceeded)
	m.ProviderDone(protocol.MethodHover, "lua", 5*time.Millisecond, errors.New("boom"))
	m.ProviderDone(protocol.MethodHover, "lua", time.Millisecond, nil)
	m.DocumentEvent("open")
	m.DocumentEvent("open")
	m.Registrations(7)
	m.ExtensionTelemetry("gopher", "lint")
	m.MessageDropped("gopher")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues(protocol.MethodHover, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues(protocol.MethodHover, "cancelled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerErrors.WithLabelValues(protocol.MethodHover, "gopher", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerErrors.WithLabelValues(protocol.MethodHover, "lua", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.providerDuration))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.documentEvents.WithLabelValues("open")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.registrations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.extTelemetry.WithLabelValues("gopher", "lint")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesDropped.WithLabelValues("gopher")))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.Registrations(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "exthost_registrations 3")
	assert.Contains(t, string(body), "go_goroutines")
}
