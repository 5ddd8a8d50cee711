package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinary(t *testing.T) {
	status := Binary("sh").Probe(context.Background())
	assert.Equal(t, StateHealthy, status.State)

	status = Binary("definitely-not-installed-anywhere").Probe(context.Background())
	assert.Equal(t, StateUnhealthy, status.State)
	assert.Contains(t, status.Message, "not found")
}

func TestNetwork(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	port := listener.Addr().(*net.TCPAddr).Port

	status := Network("127.0.0.1", port).Probe(context.Background())
	assert.Equal(t, StateHealthy, status.State)

	listener.Close()
	status = Network("127.0.0.1", port).Probe(context.Background())
	assert.Equal(t, StateUnhealthy, status.State)
}

func TestFile(t *testing.T) {
	dir := t.TempDir()

	status := File(dir).Probe(context.Background())
	assert.Equal(t, StateHealthy, status.State)

	status = File(dir + "/missing").Probe(context.Background())
	assert.Equal(t, StateUnhealthy, status.State)
}

func TestEvaluate_Aggregation(t *testing.T) {
	fixed := func(s Status) Check {
		return Check{Name: "fixed:" + string(s.State), Probe: func(context.Context) Status { return s }}
	}

	report := Evaluate(context.Background(), fixed(Healthy("ok")), fixed(Healthy("ok")))
	assert.Equal(t, StateHealthy, report.State)

	report = Evaluate(context.Background(), fixed(Healthy("ok")), fixed(Degraded("meh")))
	assert.Equal(t, StateDegraded, report.State)

	report = Evaluate(context.Background(), fixed(Degraded("meh")), fixed(Unhealthy("down")))
	assert.Equal(t, StateUnhealthy, report.State)
	assert.Len(t, report.Checks, 2)
}

func TestEvaluate_NoChecks(t *testing.T) {
	report := Evaluate(context.Background())
	assert.Equal(t, StateHealthy, report.State)
	assert.Empty(t, report.Checks)
}

func TestHandler(t *testing.T) {
	srv := httptest.NewServer(Handler(Binary("sh")))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var report Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, StateHealthy, report.State)
	assert.Contains(t, report.Checks, "binary:sh")
}

func TestHandler_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(Handler(Binary("definitely-not-installed-anywhere")))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
