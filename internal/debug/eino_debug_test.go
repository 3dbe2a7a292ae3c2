package debug

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexQuant/config"
)

func TestDisabledDebuggerIsNoop(t *testing.T) {
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.EinoDebugEnabled = false

	d := NewEinoDebugger(cfg, nil)
	called := false
	d.start = func(context.Context) error {
		called = true
		return nil
	}

	require.NoError(t, d.Initialize(context.Background()))
	assert.False(t, called)
	assert.Empty(t, d.GetDebugURL())
}

func TestEnabledDebuggerInitializes(t *testing.T) {
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.EinoDebugEnabled = true
	cfg.EinoDebugPort = 52538

	d := NewEinoDebugger(cfg, nil)
	calls := 0
	d.start = func(context.Context) error {
		calls++
		return nil
	}

	require.NoError(t, d.Initialize(context.Background()))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "http://localhost:52538", d.GetDebugURL())

	d.start = func(context.Context) error { return errors.New("port in use") }
	err := d.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port in use")
}
