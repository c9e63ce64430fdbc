package mqtt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bittoy/channel/engine"
	"github.com/bittoy/channel/types"
)

func newTestContext(t *testing.T) *engine.Context {
	t.Helper()
	return engine.NewContext(types.NewConfig(types.WithLogger(types.NopLogger())))
}

func TestConstructionValidation(t *testing.T) {
	ctx := newTestContext(t)

	_, err := ctx.Channel("mqtt://;name=bus;topic=demo")
	require.Error(t, err, "broker address is required")

	_, err = ctx.Channel("mqtt://localhost:1883;name=bus")
	require.Error(t, err, "topic is required")

	_, err = ctx.Channel("mqtt://localhost:1883;name=bus;topic=demo;queue=0")
	require.Error(t, err, "queue must be positive")

	c, err := ctx.Channel("mqtt://localhost:1883;name=bus;topic=demo")
	require.NoError(t, err)
	assert.Equal(t, types.StateClosed, c.State())
}

func TestPostRequiresOpen(t *testing.T) {
	ctx := newTestContext(t)
	c, err := ctx.Channel("mqtt://localhost:1883;name=bus;topic=demo")
	require.NoError(t, err)
	require.Error(t, c.Post(&types.Message{Data: []byte("x")}))
}

func TestManualOpenStaysOpening(t *testing.T) {
	ctx := newTestContext(t)
	c, err := ctx.Channel("mqtt://localhost:1883;name=bus;topic=demo")
	require.NoError(t, err)

	// the broker handshake completes in Process; without one the channel
	// stays in Opening until closed
	require.NoError(t, c.Open())
	assert.Equal(t, types.StateOpening, c.State())
	require.NoError(t, c.Close())
	assert.Equal(t, types.StateClosed, c.State())
}
