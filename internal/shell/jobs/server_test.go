package jobs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/orbit-raas/internal/core/domain"
)

func newTestServer(t *testing.T, ops *stubOps, runs *memRuns, token string) *httptest.Server {
	t.Helper()
	cfg := ServerConfig{Handlers: newTestHandlers(ops, runs), Token: token}
	if runs != nil {
		cfg.Runs = runs
	}
	srv := httptest.NewServer(NewRouter(cfg))
	t.Cleanup(srv.Close)
	return srv
}

func decodeResult(t *testing.T, resp *http.Response) Result {
	t.Helper()
	defer resp.Body.Close()
	var res Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return res
}

func TestServer_InvokeRestart(t *testing.T) {
	srv := newTestServer(t, &stubOps{}, nil, "")

	resp, err := http.Post(srv.URL+"/jobs/2", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	res := decodeResult(t, resp)
	assert.Equal(t, domain.JobRestartRollup, res.JobID)
	assert.Equal(t, "Rollup successfully restarted", res.Message)
	assert.True(t, strings.HasPrefix(res.CallID, "call_"))
}

func TestServer_FailureIsStill200(t *testing.T) {
	srv := newTestServer(t, &stubOps{restartErr: domain.ErrNotDeployed}, nil, "")

	resp, err := http.Post(srv.URL+"/jobs/2", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Failed to restart rollup: rollup not deployed", decodeResult(t, resp).Message)
}

func TestServer_InvokeMetadata(t *testing.T) {
	ops := &stubOps{}
	srv := newTestServer(t, ops, nil, "")

	body := `{"name":"orbit","chain_id":7,"avail_app_id":"12"}`
	resp, err := http.Post(srv.URL+"/jobs/1", "application/json", strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, "Rollup metadata successfully updated", decodeResult(t, resp).Message)
	metadata, _ := ops.snapshot()
	require.NotNil(t, metadata)
	assert.Equal(t, uint64(7), metadata.ChainID)
	assert.Equal(t, "12", metadata.AvailAppID)
}

func TestServer_InvokeMetadata_BadBody(t *testing.T) {
	ops := &stubOps{}
	runs := &memRuns{}
	srv := newTestServer(t, ops, runs, "")

	for _, body := range []string{"", "{not json", `{"unknown_field":1}`} {
		resp, err := http.Post(srv.URL+"/jobs/1", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		msg := decodeResult(t, resp).Message
		assert.True(t, strings.HasPrefix(msg, "Failed to update rollup metadata: invalid metadata"), msg)
	}

	_, calls := ops.snapshot()
	assert.Empty(t, calls)
	assert.Len(t, runs.all(), 3)
}

func TestServer_InvokeDeposit(t *testing.T) {
	ops := &stubOps{}
	srv := newTestServer(t, ops, nil, "")

	resp, err := http.Post(srv.URL+"/jobs/5", "application/json", strings.NewReader(`{"amount":"1.5"}`))
	require.NoError(t, err)

	res := decodeResult(t, resp)
	assert.Equal(t, domain.JobDepositFunds, res.JobID)
	assert.Equal(t, "ETH successfully deposited", res.Message)
	require.NotNil(t, ops.deposit)
	assert.Equal(t, "1.5", ops.deposit.Amount)
}

func TestServer_InvokeRefund(t *testing.T) {
	ops := &stubOps{refundErr: domain.ErrNotDeployed}
	srv := newTestServer(t, ops, nil, "")

	body := `{"target_address":"0x5fbdb2315678afecb367f032d93f642f64180aa3"}`
	resp, err := http.Post(srv.URL+"/jobs/6", "application/json", strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Failed to process refund: rollup not deployed", decodeResult(t, resp).Message)
	require.NotNil(t, ops.refund)
	assert.Equal(t, "0x5fbdb2315678afecb367f032d93f642f64180aa3", ops.refund.TargetAddress)
}

func TestServer_FundJobs_BadBody(t *testing.T) {
	ops := &stubOps{}
	srv := newTestServer(t, ops, nil, "")

	tests := []struct {
		path   string
		body   string
		prefix string
	}{
		{"/jobs/5", "", "Failed to deposit ETH: invalid deposit request"},
		{"/jobs/5", `{"amount":"1","extra":true}`, "Failed to deposit ETH: invalid deposit request"},
		{"/jobs/6", "[1,2]", "Failed to process refund: invalid refund request"},
	}
	for _, tt := range tests {
		resp, err := http.Post(srv.URL+tt.path, "application/json", strings.NewReader(tt.body))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		msg := decodeResult(t, resp).Message
		assert.True(t, strings.HasPrefix(msg, tt.prefix), msg)
	}

	_, calls := ops.snapshot()
	assert.Empty(t, calls)
}

func TestServer_UnknownJob(t *testing.T) {
	srv := newTestServer(t, &stubOps{}, nil, "")

	resp, err := http.Post(srv.URL+"/jobs/9", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/jobs/abc", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_CallerCallID(t *testing.T) {
	srv := newTestServer(t, &stubOps{}, nil, "")

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/jobs/3", nil)
	require.NoError(t, err)
	req.Header.Set("X-Call-ID", "call_fixed")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	assert.Equal(t, "call_fixed", decodeResult(t, resp).CallID)
}

func TestServer_ListRuns(t *testing.T) {
	runs := &memRuns{}
	srv := newTestServer(t, &stubOps{}, runs, "")

	for _, id := range []string{"2", "3"} {
		resp, err := http.Post(srv.URL+"/jobs/"+id, "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/jobs/runs?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Runs []domain.JobRun `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "update_bridge", body.Runs[0].JobName)
}

func TestServer_ListRuns_Disabled(t *testing.T) {
	srv := newTestServer(t, &stubOps{}, nil, "")

	resp, err := http.Get(srv.URL + "/jobs/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_BearerToken(t *testing.T) {
	srv := newTestServer(t, &stubOps{}, nil, "s3cret")

	resp, err := http.Post(srv.URL+"/jobs/2", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/jobs/2", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	decodeResult(t, resp)

	// Health stays open
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
