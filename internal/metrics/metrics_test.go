package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersExposed(t *testing.T) {
	before := testutil.ToFloat64(WorkflowStopCallsTotal.WithLabelValues("ok"))
	WorkflowStopCallsTotal.WithLabelValues("ok").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(WorkflowStopCallsTotal.WithLabelValues("ok")))

	ImageResultsTotal.WithLabelValues("placeholder").Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "adapter_workflow_stop_calls_total")
	assert.Contains(t, string(body), `adapter_image_results_total{source="placeholder"}`)
}
