package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerExposesProbeMetrics(t *testing.T) {
	PacketsTotal.WithLabelValues("test0", ResultSampled).Inc()
	ExportErrorsTotal.WithLabelValues("test0", "flush").Inc()

	s := NewServer("127.0.0.1:0", "")
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	resp, err := http.Get("http://" + s.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `hsprobe_packets_total{device="test0",result="sampled"}`)
	assert.Contains(t, string(body), `hsprobe_export_errors_total{device="test0",op="flush"}`)
}

func TestServerStopBeforeStart(t *testing.T) {
	s := NewServer(":0", "/m")
	assert.Nil(t, s.Addr())
	assert.NoError(t, s.Stop(context.Background()))
}

func TestServerListenError(t *testing.T) {
	s := NewServer("256.0.0.1:bad", "")
	assert.Error(t, s.Start(context.Background()))
}
