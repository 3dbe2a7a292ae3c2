package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacerSpacesRequestStarts(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var slept []time.Duration

	p := NewPacer(300 * time.Millisecond)
	p.now = func() time.Time { return now }
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		now = now.Add(d)
		return nil
	}

	ctx := context.Background()
	waited, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Zero(t, waited)

	now = now.Add(100 * time.Millisecond)
	waited, err = p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, waited)

	now = now.Add(time.Second)
	waited, err = p.Wait(ctx)
	require.NoError(t, err)
	assert.Zero(t, waited)

	assert.Equal(t, []time.Duration{200 * time.Millisecond}, slept)
}

func TestPacerHonoursCancellation(t *testing.T) {
	p := NewPacer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := p.Wait(ctx)
	require.NoError(t, err)

	cancel()
	_, err = p.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
