// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/sosync/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func TestMemoryBusDropMetrics(t *testing.T) {
	b := NewMemoryBus(WithBuffer(1))
	sub, err := b.Subscribe(context.Background(), "location/42")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	initial := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("location", "timeout"))

	require.NoError(t, b.Publish(context.Background(), "location/42", "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = b.Publish(ctx, "location/42", "second")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	final := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("location", "timeout"))
	require.Greater(t, final, initial, "expected bus drop counter to increase")
}

func TestMemoryBus_IndependentSubscriptions(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	global, err := b.Subscribe(ctx, "sessions")
	require.NoError(t, err)
	defer global.Close()
	detail, err := b.Subscribe(ctx, "location/1")
	require.NoError(t, err)

	require.NoError(t, detail.Close())
	_, open := <-detail.C()
	assert.False(t, open, "closed subscription channel must be closed")

	require.NoError(t, b.Publish(ctx, "location/1", "dropped-silently"))
	require.NoError(t, b.Publish(ctx, "sessions", "still-delivered"))
	assert.Equal(t, "still-delivered", <-global.C())
	assert.Equal(t, 0, b.Subscribers("location/1"))
	assert.Equal(t, 1, b.Subscribers("sessions"))
}

func TestMemoryBus_CloseDuringBlockedPublish(t *testing.T) {
	b := NewMemoryBus(WithBuffer(1))
	sub, err := b.Subscribe(context.Background(), "units")
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), "units", 1))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Blocks on the full buffer until Close releases it.
		assert.NoError(t, b.Publish(context.Background(), "units", 2))
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "close is idempotent")
	wg.Wait()
}

func TestTopicClass(t *testing.T) {
	assert.Equal(t, "location", TopicClass("location/abc"))
	assert.Equal(t, "sessions", TopicClass("sessions"))
}
