package geoglows

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
	"github.com/couchcryptid/streamflow-alert-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSimulations struct {
	calls   atomic.Int32
	result  domain.TimeSeries
	err     error
	release chan struct{} // when set, each call blocks until it is closed
}

func (s *countingSimulations) HistoricSimulation(_ context.Context, reachID int64) (domain.TimeSeries, error) {
	s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return domain.TimeSeries{}, s.err
	}
	if s.result.ID != "" {
		return s.result, nil
	}
	return series(string(rune('0'+reachID)), float64(reachID)), nil
}

func series(id string, v float64) domain.TimeSeries {
	return domain.TimeSeries{ID: id, Points: []domain.Point{{Time: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), Value: v}}}
}

func fakeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	clk := clockwork.NewFakeClockAt(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	domain.SetClock(clk)
	t.Cleanup(func() { domain.SetClock(nil) })
	return clk
}

func TestCachedSimulations_Hit(t *testing.T) {
	inner := &countingSimulations{result: series("1", 4)}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedSimulations(inner, 4, time.Hour, metrics)

	for range 3 {
		s, err := cached.HistoricSimulation(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, 4.0, s.Points[0].Value)
	}

	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SimulationCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SimulationCache.WithLabelValues("miss")))
}

func TestCachedSimulations_ErrorsAndEmptyNotCached(t *testing.T) {
	inner := &countingSimulations{err: errors.New("down")}
	cached := NewCachedSimulations(inner, 4, time.Hour, observability.NewMetricsForTesting())

	_, err := cached.HistoricSimulation(context.Background(), 1)
	require.Error(t, err)

	inner.err = nil
	inner.result = domain.TimeSeries{ID: "empty"}
	_, _ = cached.HistoricSimulation(context.Background(), 1)
	_, _ = cached.HistoricSimulation(context.Background(), 1)

	assert.Equal(t, int32(3), inner.calls.Load())
	assert.Zero(t, cached.Len())
}

func TestCachedSimulations_ExpiresAfterTTL(t *testing.T) {
	clk := fakeClock(t)
	inner := &countingSimulations{}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedSimulations(inner, 4, 24*time.Hour, metrics)
	ctx := context.Background()

	_, err := cached.HistoricSimulation(ctx, 1)
	require.NoError(t, err)

	clk.Advance(23 * time.Hour)
	_, err = cached.HistoricSimulation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.calls.Load(), "still fresh")

	clk.Advance(time.Hour)
	_, err = cached.HistoricSimulation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load(), "refetched at the TTL")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SimulationCache.WithLabelValues("expired")))

	clk.Advance(time.Hour)
	_, err = cached.HistoricSimulation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load(), "refetch restarts the TTL")
}

func TestCachedSimulations_ZeroTTLNeverExpires(t *testing.T) {
	clk := fakeClock(t)
	inner := &countingSimulations{}
	cached := NewCachedSimulations(inner, 4, 0, observability.NewMetricsForTesting())

	_, _ = cached.HistoricSimulation(context.Background(), 1)
	clk.Advance(365 * 24 * time.Hour)
	_, _ = cached.HistoricSimulation(context.Background(), 1)

	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachedSimulations_ConcurrentMissesShareOneFetch(t *testing.T) {
	inner := &countingSimulations{release: make(chan struct{})}
	cached := NewCachedSimulations(inner, 4, time.Hour, observability.NewMetricsForTesting())

	const callers = 8
	var wg sync.WaitGroup
	results := make([]domain.TimeSeries, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = cached.HistoricSimulation(context.Background(), 7)
		}()
	}

	require.Eventually(t, func() bool { return inner.calls.Load() > 0 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	assert.Equal(t, int32(1), inner.calls.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, 7.0, results[i].Points[0].Value)
	}
}

func TestCachedSimulations_EvictsLeastRecentlyRead(t *testing.T) {
	inner := &countingSimulations{}
	cached := NewCachedSimulations(inner, 2, time.Hour, observability.NewMetricsForTesting())
	ctx := context.Background()

	_, _ = cached.HistoricSimulation(ctx, 1)
	_, _ = cached.HistoricSimulation(ctx, 2)
	_, _ = cached.HistoricSimulation(ctx, 1) // 2 is now the oldest read
	_, _ = cached.HistoricSimulation(ctx, 3)
	require.Equal(t, 2, cached.Len())
	require.Equal(t, int32(3), inner.calls.Load())

	_, _ = cached.HistoricSimulation(ctx, 1)
	assert.Equal(t, int32(3), inner.calls.Load(), "1 survived")
	_, _ = cached.HistoricSimulation(ctx, 2)
	assert.Equal(t, int32(4), inner.calls.Load(), "2 was evicted")
}
