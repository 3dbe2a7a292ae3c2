package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexQuant/internal/dataflows/datatest"
	"github.com/dyike/CortexQuant/internal/metrics"
	"github.com/dyike/CortexQuant/models"
)

func TestConcurrentMissesShareOneLoad(t *testing.T) {
	c := NewReadThrough[int]("test", time.Minute, metrics.New())

	var loads atomic.Int64
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		loads.Add(1)
		<-release
		return 42, nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), "k", load)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), loads.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}

	// Served from cache afterwards.
	v, err := c.Get(context.Background(), "k", load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, int64(1), loads.Load())
}

func TestFailuresAreNotCached(t *testing.T) {
	c := NewReadThrough[string]("test", time.Minute, nil)

	var calls int
	load := func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("upstream down")
		}
		return "ok", nil
	}

	_, err := c.Get(context.Background(), "k", load)
	require.Error(t, err)
	assert.Zero(t, c.Len())

	v, err := c.Get(context.Background(), "k", load)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestEntriesExpire(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewReadThrough[int]("test", time.Minute, nil)
	c.now = func() time.Time { return now }

	var calls int
	load := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	v, _ := c.Get(context.Background(), "k", load)
	assert.Equal(t, 1, v)

	now = now.Add(59 * time.Second)
	v, _ = c.Get(context.Background(), "k", load)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Second)
	v, _ = c.Get(context.Background(), "k", load)
	assert.Equal(t, 2, v)
}

func TestEntryAgedExactlyTTLIsReloaded(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewReadThrough[int]("test", time.Minute, nil)
	c.now = func() time.Time { return now }

	var calls int
	load := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	_, err := c.Get(context.Background(), "k", load)
	require.NoError(t, err)

	now = now.Add(time.Minute - time.Nanosecond)
	_, ok := c.Peek("k")
	assert.True(t, ok)

	now = now.Add(time.Nanosecond)
	_, ok = c.Peek("k")
	assert.False(t, ok)

	v, err := c.Get(context.Background(), "k", load)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, calls)
}

func TestCallerCancellationDoesNotAbortSharedLoad(t *testing.T) {
	c := NewReadThrough[int]("test", time.Minute, nil)
	release := make(chan struct{})
	done := make(chan struct{})
	load := func(ctx context.Context) (int, error) {
		defer close(done)
		<-release
		return 7, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Get(ctx, "k", load)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-done

	v, ok := c.Peek("k")
	require.Eventually(t, func() bool {
		v, ok = c.Peek("k")
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 7, v)
}

func TestMarketDataCacheCollapsesQuoteFetches(t *testing.T) {
	src := datatest.NewMarket()
	src.Delay = 10 * time.Millisecond
	src.SetQuote(&models.Quote{Code: "600000", Price: 8.5})

	md := NewMarketDataCache(src, time.Minute, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := md.GetQuote(context.Background(), "600000")
			assert.NoError(t, err)
			assert.InDelta(t, 8.5, q.Price, 1e-9)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), src.QuoteCalls.Load())

	_, err := md.GetQuote(context.Background(), "000001")
	require.Error(t, err)
	_, err = md.GetQuote(context.Background(), "000001")
	require.Error(t, err)
	assert.Equal(t, int64(3), src.QuoteCalls.Load())
}

func TestMarketDataCacheKeysCandlesByShape(t *testing.T) {
	src := datatest.NewMarket()
	src.SetCandles("600000", datatest.Trend(120, 10, 1.001))
	md := NewMarketDataCache(src, time.Minute, time.Minute, nil)

	a, err := md.GetCandles(context.Background(), "600000", models.IntervalDaily, 60)
	require.NoError(t, err)
	b, err := md.GetCandles(context.Background(), "600000", models.IntervalDaily, 100)
	require.NoError(t, err)
	_, err = md.GetCandles(context.Background(), "600000", models.IntervalDaily, 60)
	require.NoError(t, err)

	assert.Len(t, a, 60)
	assert.Len(t, b, 100)
	assert.Equal(t, int64(2), src.CandleCalls.Load())
}
