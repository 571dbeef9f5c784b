package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathoo/condcore/config"
)

func testCollector() *Collector {
	return NewCollector(config.MetricsConfig{Namespace: "test"}, prometheus.NewRegistry())
}

func TestCollector_RecordEvaluation(t *testing.T) {
	c := testCollector()
	c.RecordEvaluation("C1", true, time.Millisecond)
	c.RecordEvaluation("C1", true, time.Millisecond)
	c.RecordEvaluation("C1", false, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.evaluationsTotal.WithLabelValues("C1", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.evaluationsTotal.WithLabelValues("C1", "false")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.evaluationDuration))
}

func TestCollector_RecordErrorAndReload(t *testing.T) {
	c := testCollector()
	c.RecordError("X", "cycle_detected", time.Microsecond)
	c.RecordError("Y", "", time.Microsecond)
	c.RecordReload(nil)
	c.RecordReload(errors.New("bad file"))
	c.RecordTransition("C1", "true")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.errorsTotal.WithLabelValues("cycle_detected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errorsTotal.WithLabelValues("other")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reloadsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reloadsTotal.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitionsTotal.WithLabelValues("C1", "true")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordEvaluation("k", true, time.Second)
		c.RecordError("k", "k", time.Second)
		c.RecordReload(nil)
		c.RecordTransition("k", "false")
	})
}

func TestCollector_Handler(t *testing.T) {
	c := testCollector()
	c.RecordEvaluation("Alarm", true, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `test_evaluations_total{key="Alarm",verdict="true"} 1`)
}
