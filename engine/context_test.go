package engine_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bittoy/channel/components/prefix"
	"github.com/bittoy/channel/engine"
	"github.com/bittoy/channel/types"
)

// TestPrefix is a pass-through wrapping channel.
type TestPrefix struct {
	prefix.Prefix
}

func (p *TestPrefix) New() types.Impl { return &TestPrefix{} }

func (p *TestPrefix) Proto() string { return "prefix+" }

func (p *TestPrefix) Init(base types.BaseChannel, url *types.Url, master types.Channel) error {
	return p.InitPrefix(p, base, url, master)
}

func newTestContext(t *testing.T) *engine.Context {
	t.Helper()
	return engine.NewContext(types.NewConfig(types.WithLogger(types.NopLogger())))
}

func TestRegistryDuplicates(t *testing.T) {
	ctx := newTestContext(t)
	require.NoError(t, ctx.Register(&Echo{}))
	require.Error(t, ctx.Register(&Echo{}))
	require.NoError(t, ctx.Unregister(&Echo{}))
	require.Error(t, ctx.Unregister(&Echo{}))
}

func TestConstructionErrors(t *testing.T) {
	ctx := newTestContext(t)
	require.NoError(t, ctx.Register(&Echo{}))

	_, err := ctx.Channel("bogus")
	require.Error(t, err)

	_, err = ctx.Channel("unknown://;name=u")
	require.Error(t, err)

	_, err = ctx.Channel("null://;name=dup")
	require.NoError(t, err)
	_, err = ctx.Channel("null://;name=dup")
	require.Error(t, err)
	assert.NotNil(t, ctx.Get("dup"))

	_, err = ctx.Channel("direct://;name=slave;master=nobody")
	require.Error(t, err)
	assert.Nil(t, ctx.Get("slave"))
}

func TestGeneratedNames(t *testing.T) {
	ctx := newTestContext(t)
	a, err := ctx.Channel("null://")
	require.NoError(t, err)
	b, err := ctx.Channel("null://")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(a.Name(), "null-"))
	assert.True(t, strings.HasPrefix(b.Name(), "null-"))
	assert.NotEqual(t, a.Name(), b.Name())
	assert.Equal(t, a, ctx.Get(a.Name()))
}

func TestAliasExpansion(t *testing.T) {
	ctx := newTestContext(t)
	require.NoError(t, ctx.Register(&Echo{}))
	require.NoError(t, ctx.Register(&TestPrefix{}))

	require.NoError(t, ctx.Alias("aecho", "echo://"))
	require.NoError(t, ctx.Alias("aprefix+", "prefix+://"))
	require.NoError(t, ctx.Alias("alias", "aprefix+echo://"))
	require.Error(t, ctx.Alias("aecho", "echo://"))

	c, err := ctx.Channel("aecho://;name=echo")
	require.NoError(t, err)
	assert.Equal(t, "echo://;name=echo", c.Config().Get("init", ""))
	// `url` mirrors `init` for compatibility
	assert.Equal(t, "echo://;name=echo", c.Config().Get("url", ""))

	c, err = ctx.Channel("aprefix+aecho://;name=prefix")
	require.NoError(t, err)
	assert.Equal(t, "prefix+aecho://;name=prefix", c.Config().Get("init", ""))

	c, err = ctx.Channel("alias://;name=alias")
	require.NoError(t, err)
	assert.Equal(t, "prefix+echo://;name=alias", c.Config().Get("init", ""))
}

func TestAliasCycleFailsConstruction(t *testing.T) {
	ctx := newTestContext(t)
	require.NoError(t, ctx.Alias("a", "b://"))
	require.NoError(t, ctx.Alias("b", "a://"))
	_, err := ctx.Channel("a://;name=loop")
	require.Error(t, err)
}

func TestPrefixRequiresLeaf(t *testing.T) {
	ctx := newTestContext(t)
	require.NoError(t, ctx.Register(&TestPrefix{}))
	_, err := ctx.Channel("prefix+://;name=x")
	require.Error(t, err)
}

func TestStat(t *testing.T) {
	ctx := newTestContext(t)
	require.NoError(t, ctx.Register(&Echo{}))

	assert.Empty(t, ctx.StatList())

	c, err := ctx.Channel("echo://;name=echo", types.Props{types.KeyStat: "yes"})
	require.NoError(t, err)

	list := ctx.StatList()
	require.Len(t, list, 1)
	assert.Equal(t, "echo", list[0].Name())

	require.NoError(t, c.Open())
	assert.Equal(t, types.StateOpening, c.State())
	require.NoError(t, c.Process(context.Background()))
	assert.Equal(t, types.StateActive, c.State())

	snap := list[0].Swap()
	assert.Equal(t, int64(0), snap.RxMessages)
	assert.Equal(t, int64(0), snap.RxBytes)
	assert.Equal(t, int64(0), snap.TxMessages)
	assert.Equal(t, int64(0), snap.TxBytes)

	require.NoError(t, c.Post(&types.Message{Seq: 100, Data: []byte("xxx")}))

	snap = list[0].Swap()
	assert.Equal(t, int64(1), snap.RxMessages)
	assert.Equal(t, int64(3), snap.RxBytes)
	assert.Equal(t, int64(1), snap.TxMessages)
	assert.Equal(t, int64(3), snap.TxBytes)

	// swap is idempotent on a quiescent channel
	assert.Equal(t, list[0].Swap(), list[0].Swap())

	c.Destroy()
	assert.Empty(t, ctx.StatList())
}

func TestStatCollector(t *testing.T) {
	ctx := newTestContext(t)
	require.NoError(t, ctx.Register(&Echo{}))

	c, err := ctx.Channel("echo://;name=echo", types.Props{types.KeyStat: "yes"})
	require.NoError(t, err)
	require.NoError(t, c.Open())
	require.NoError(t, c.Process(context.Background()))
	require.NoError(t, c.Post(&types.Message{Data: []byte("abc")}))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(engine.NewStatCollector(ctx)))

	families, err := reg.Gather()
	require.NoError(t, err)
	found := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			found[mf.GetName()] = m.GetGauge().GetValue()
		}
	}
	assert.Equal(t, float64(1), found["channel_stat_rx_messages"])
	assert.Equal(t, float64(3), found["channel_stat_rx_bytes"])
	assert.Equal(t, float64(1), found["channel_stat_tx_messages"])

	// the collector reads without resetting
	snap := ctx.StatList()[0].Read()
	assert.Equal(t, int64(1), snap.RxMessages)
}
