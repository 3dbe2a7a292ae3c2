package selection

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexQuant/models"
)

type countingSelector struct {
	runs  atomic.Int32
	delay time.Duration
	err   error
}

func (s *countingSelector) Select(ctx context.Context, held []string) (*models.PipelineResult, error) {
	n := s.runs.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &models.PipelineResult{
		SectorName:  "run",
		Candidates:  []models.Candidate{{CandidateFeatures: models.CandidateFeatures{Code: "X"}, PreScore: float64(n)}},
		GeneratedAt: time.Unix(int64(n), 0).UTC(),
	}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestGateIdempotentWithinTTL(t *testing.T) {
	sel := &countingSelector{}
	g := NewGate(sel)

	first, err := g.Select(context.Background(), []string{"600519", "000001"})
	require.NoError(t, err)
	second, err := g.Select(context.Background(), []string{"000001", "600519"})
	require.NoError(t, err)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.Equal(t, a, b)
	assert.Equal(t, int32(1), sel.runs.Load())
	assert.Equal(t, int64(1), g.Runs())
}

func TestGateSecondCallerWaitsForFirst(t *testing.T) {
	sel := &countingSelector{delay: 100 * time.Millisecond}
	g := NewGate(sel)

	var wg sync.WaitGroup
	results := make([]*models.PipelineResult, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := g.Select(context.Background(), nil)
			assert.NoError(t, err)
			results[i] = res
		}()
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, int32(1), sel.runs.Load())
	assert.Same(t, results[0], results[1])
}

func TestGateManyConcurrentCallers(t *testing.T) {
	sel := &countingSelector{delay: 20 * time.Millisecond}
	g := NewGate(sel)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Select(context.Background(), []string{"A"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), sel.runs.Load())
}

func TestGateExpires(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	sel := &countingSelector{}
	g := NewGate(sel, WithGateTTL(time.Minute), WithGateClock(clock.Now))

	_, err := g.Select(context.Background(), nil)
	require.NoError(t, err)
	clock.Advance(59 * time.Second)
	_, err = g.Select(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), sel.runs.Load())

	clock.Advance(time.Second)
	_, err = g.Select(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), sel.runs.Load())
}

func TestGateKeyedByHoldings(t *testing.T) {
	sel := &countingSelector{}
	g := NewGate(sel)
	_, _ = g.Select(context.Background(), []string{"A"})
	_, _ = g.Select(context.Background(), []string{"B"})
	assert.Equal(t, int32(2), sel.runs.Load())

	g.Invalidate()
	_, _ = g.Select(context.Background(), []string{"B"})
	assert.Equal(t, int32(3), sel.runs.Load())
}

func TestGateDoesNotCacheErrors(t *testing.T) {
	sel := &countingSelector{err: ErrNoEligibleCandidates}
	g := NewGate(sel)

	_, err := g.Select(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoEligibleCandidates)
	_, err = g.Select(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrNoEligibleCandidates))
	assert.Equal(t, int32(2), sel.runs.Load())
}

func TestGateWaiterHonoursContext(t *testing.T) {
	sel := &countingSelector{delay: 200 * time.Millisecond}
	g := NewGate(sel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = g.Select(context.Background(), nil)
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.Select(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	<-done
}
