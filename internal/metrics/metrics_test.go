// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestRecordAPIRequest_Classes(t *testing.T) {
	cases := []struct {
		status int
		err    error
		class  string
	}{
		{201, nil, "2xx"},
		{404, nil, "4xx"},
		{503, nil, "5xx"},
		{0, errors.New("dial"), "error"},
	}
	for _, tc := range cases {
		before := counterValue(t, APIRequestsTotal.WithLabelValues("test_op", tc.class))
		RecordAPIRequest("test_op", tc.status, tc.err)
		after := counterValue(t, APIRequestsTotal.WithLabelValues("test_op", tc.class))
		require.Equal(t, before+1, after, "status %d", tc.status)
	}
}

func TestSetBreakerState(t *testing.T) {
	for state, want := range map[string]float64{"closed": 0, "half-open": 1, "open": 2, "bogus": 0} {
		SetBreakerState("test", state)
		m := &dto.Metric{}
		require.NoError(t, breakerState.WithLabelValues("test").Write(m))
		require.Equal(t, want, m.GetGauge().GetValue(), state)
	}
}

func TestRecordTransportSend(t *testing.T) {
	before := counterValue(t, TransportSendsTotal.WithLabelValues("socket", "ok"))
	RecordTransportSend("socket", "ok", 20*time.Millisecond)
	require.Equal(t, before+1, counterValue(t, TransportSendsTotal.WithLabelValues("socket", "ok")))
}
