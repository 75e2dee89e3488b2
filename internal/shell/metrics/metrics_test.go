package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Stage(t *testing.T) {
	m := New()

	m.ObserveStage("pull_image", time.Second, nil)
	m.ObserveStage("fetch_sources", time.Second, errors.New("boom"))
	m.ObserveStage("fetch_sources", time.Second, errors.New("boom"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.stageFailures.WithLabelValues("fetch_sources")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.stageFailures.WithLabelValues("pull_image")))
}

func TestMetrics_JobsAndRecord(t *testing.T) {
	m := New()

	m.RecordJob("restart_rollup", true)
	m.RecordJob("restart_rollup", false)
	m.RecordDeploy(true)
	m.SetRecordState(true, 3)
	m.SetUnhealthyContainers(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobs.WithLabelValues("restart_rollup", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobs.WithLabelValues("restart_rollup", "failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.deploys.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.deployed))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.containers))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.unhealthy))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	m.ObserveStage("pull_image", time.Second, nil)
	m.RecordJob("x", true)
	m.RecordDeploy(false)
	m.SetRecordState(false, 0)
	m.SetUnhealthyContainers(1)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SetRecordState(true, 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "orbit_deployed 1")
	assert.Contains(t, rec.Body.String(), "orbit_tracked_containers 1")
}
