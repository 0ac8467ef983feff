package prom

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

	"github.com/aretw0/keel/pkg/core"
)

func TestObserverCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewObserver(reg)

	o.ObserveWrite("a", nil, 5*time.Millisecond)
	o.ObserveWrite("a", errors.New("disk full"), time.Millisecond)
	o.ObserveAppend("payments", nil)
	o.ObserveAppend("payments", nil)
	o.ObserveVerify("payments", core.VerifyResult{Valid: true})
	o.ObserveVerify("payments", core.VerifyResult{Errors: []core.ChainError{
		{Kind: core.TamperDetected}, {Kind: core.ChainBreak}, {Kind: core.TamperDetected},
	}})
	o.ObserveTransaction(core.StatusCommitted, time.Millisecond)
	o.ObserveTransaction(core.StatusRolledBack, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(o.writesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.writesTotal.WithLabelValues("failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(o.appendsTotal.WithLabelValues("payments", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.verificationsTotal.WithLabelValues("payments", "invalid")))
	assert.Equal(t, 2.0, testutil.ToFloat64(o.chainErrorsTotal.WithLabelValues("payments", "tamper")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.transactionsTotal.WithLabelValues("ROLLED_BACK")))

	n, err := testutil.GatherAndCount(reg, "keel_transaction_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewObserver(reg)
	o.ObserveAppend("uploads", nil)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `keel_log_appends_total{category="uploads",result="success"} 1`)
}
