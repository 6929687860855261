package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-lab/internal/domain"
)

func TestRecordRun(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.TradesClosed.WithLabelValues("STOP_LOSS"))
	ticks := testutil.ToFloat64(DefaultMetrics.TicksProcessed)

	RecordRun(&domain.RunResult{
		TicksProcessed: 10,
		Compliance:     domain.ComplianceState{Status: domain.ComplianceActive},
		Trades: []domain.ClosedTrade{
			{ExitReason: domain.ExitReasonStopLoss},
			{ExitReason: domain.ExitReasonStopLoss},
		},
	}, 0.01)

	assert.Equal(t, before+2, testutil.ToFloat64(DefaultMetrics.TradesClosed.WithLabelValues("STOP_LOSS")))
	assert.Equal(t, ticks+10, testutil.ToFloat64(DefaultMetrics.TicksProcessed))
}

func TestRecordSweep(t *testing.T) {
	failed := testutil.ToFloat64(DefaultMetrics.SweepRunsFailed)
	RecordSweepRun(true)
	RecordSweepRun(false)
	assert.Equal(t, failed+1, testutil.ToFloat64(DefaultMetrics.SweepRunsFailed))

	UpdateSweepProgress(1, 4)
	assert.Equal(t, 0.25, testutil.ToFloat64(DefaultMetrics.SweepProgress))
	UpdateSweepProgress(1, 0)
	assert.Equal(t, 0.25, testutil.ToFloat64(DefaultMetrics.SweepProgress))

	RecordSweep("ok", 2, 0.75, 1700000000)
	assert.Equal(t, 0.75, testutil.ToFloat64(DefaultMetrics.SweepBestFitness))
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(DefaultMetrics.LastSuccessfulSweep))

	RecordSweep("cancelled", 1, 0.1, 1800000000)
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(DefaultMetrics.LastSuccessfulSweep))
}

func TestRecordDBQuery(t *testing.T) {
	errs := testutil.ToFloat64(DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", "test_op"))
	RecordDBQuery("postgres", "test_op", 0.002, nil)
	RecordDBQuery("postgres", "test_op", 0.002, errors.New("boom"))
	assert.Equal(t, errs+1, testutil.ToFloat64(DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", "test_op")))
}

func TestNewMux(t *testing.T) {
	srv := httptest.NewServer(NewMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "strategy_lab_backtest_ticks_processed_total")
}
