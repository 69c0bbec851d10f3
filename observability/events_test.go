package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestEventModule(t *testing.T) {
	require.Equal(t, "bet", EventModule("bet.accepted"))
	require.Equal(t, "ledger", EventModule(" Ledger.Deposited "))
	require.Equal(t, "arbiter", EventModule("arbiter"))
	require.Equal(t, "unknown", EventModule(""))
}

func TestEventCountersCarryModule(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.emitted.WithLabelValues("bet", "bet.created"))
	m.Record("BET.created")
	require.Equal(t, before+1, testutil.ToFloat64(m.emitted.WithLabelValues("bet", "bet.created")))

	dropped := testutil.ToFloat64(m.dropped.WithLabelValues("explorer", "ledger"))
	m.Dropped("explorer", "ledger.withdrawn")
	require.Equal(t, dropped+1, testutil.ToFloat64(m.dropped.WithLabelValues("explorer", "ledger")))

	failed := testutil.ToFloat64(m.indexed.WithLabelValues("error"))
	m.Indexed(errors.New("db down"), time.Millisecond)
	require.Equal(t, failed+1, testutil.ToFloat64(m.indexed.WithLabelValues("error")))

	var nilMetrics *eventMetrics
	require.NotPanics(t, func() { nilMetrics.Dropped("explorer", "bet.created") })
}
