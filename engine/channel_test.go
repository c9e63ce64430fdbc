package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bittoy/channel/components/common"
	"github.com/bittoy/channel/engine"
	"github.com/bittoy/channel/types"
)

// Echo is the manual-open test channel: children are created during open,
// posts bounce back to the subscribers, state transitions complete in
// Process.
type Echo struct {
	base  types.BaseChannel
	child types.Channel
}

func (e *Echo) New() types.Impl { return &Echo{} }

func (e *Echo) Proto() string { return "echo" }

func (e *Echo) Policy() types.Policy {
	return types.Policy{
		Open:        types.OpenManual,
		Close:       types.CloseLong,
		Child:       types.ChildMany,
		Process:     types.ProcessNormal,
		PostOpening: types.PostEnable,
		PostClosing: types.PostDisable,
	}
}

func (e *Echo) Init(base types.BaseChannel, url *types.Url, master types.Channel) error {
	e.base = base
	sc, err := base.Context().SchemeLoad("yamls://[{name: Control, id: 10}]")
	if err != nil {
		return err
	}
	base.SetSchemeControl(sc)
	return nil
}

func (e *Echo) Open(props types.Props) error {
	cu, err := e.base.ChildUrl("null://", "child")
	if err != nil {
		return err
	}
	child, err := e.base.Context().Channel(cu.String())
	if err != nil {
		return err
	}
	e.child = child
	if err := e.base.ChildAdd(child); err != nil {
		return err
	}
	orphan := e.base.Context().Get("orphan")
	if orphan == nil {
		if orphan, err = e.base.Context().Channel("null://;name=orphan"); err != nil {
			return err
		}
	}
	if err := e.base.ChildAdd(orphan); err != nil {
		return err
	}
	e.base.ConfigSet("info.echo", "yes")
	return nil
}

func (e *Echo) Close(force bool) error {
	if e.child != nil {
		_ = e.base.ChildDel(e.child)
		e.child.Destroy()
		e.child = nil
	}
	return nil
}

func (e *Echo) Process(ctx context.Context) error {
	switch e.base.State() {
	case types.StateOpening:
		e.base.SetState(types.StateActive)
	case types.StateClosing:
		e.base.SetState(types.StateClosed)
	}
	return nil
}

func (e *Echo) Post(msg *types.Message) error {
	e.base.CallbackData(msg.Copy())
	return nil
}

func (e *Echo) Destroy() {}

// EchoV2 derives from Echo, replacing the info marker.
type EchoV2 struct {
	Echo
}

func (e *EchoV2) New() types.Impl { return &EchoV2{} }

func (e *EchoV2) Proto() string { return "echo-v2" }

func (e *EchoV2) Open(props types.Props) error {
	if err := e.Echo.Open(props); err != nil {
		return err
	}
	e.base.ConfigSet("info.echo", "v2")
	return nil
}

// OpenTest validates that open parameters reach the implementation
// normalized.
type OpenTest struct {
	base types.BaseChannel
}

func (o *OpenTest) New() types.Impl { return &OpenTest{} }

func (o *OpenTest) Proto() string { return "open-test" }

func (o *OpenTest) Policy() types.Policy {
	p := types.DefaultPolicy()
	p.Process = types.ProcessNever
	return p
}

func (o *OpenTest) Init(base types.BaseChannel, url *types.Url, master types.Channel) error {
	o.base = base
	return nil
}

func (o *OpenTest) Open(props types.Props) error {
	want := types.Props{"a": "1", "b": "2", "c": "3"}
	if len(props) != len(want) {
		return errors.New("invalid open parameters")
	}
	for k, v := range want {
		if props[k] != v {
			return errors.New("invalid open parameters")
		}
	}
	return nil
}

func (o *OpenTest) Close(force bool) error { return nil }

func (o *OpenTest) Process(ctx context.Context) error { return nil }

func (o *OpenTest) Post(msg *types.Message) error { return nil }

func (o *OpenTest) Destroy() {}

// accum collects data and control messages as owned copies.
type accum struct {
	result []*types.Message
}

func (a *accum) callback(ch types.Channel, msg *types.Message) {
	if msg.Type == types.MsgData || msg.Type == types.MsgControl {
		a.result = append(a.result, msg.Copy())
	}
}

func childNames(c types.Channel) []string {
	var out []string
	for _, child := range c.Children() {
		out = append(out, child.Name())
	}
	return out
}

func TestEchoLifecycle(t *testing.T) {
	ctx := engine.NewContext(types.NewConfig(types.WithLogger(types.NopLogger())))

	_, err := ctx.Channel("echo://;name=echo")
	require.Error(t, err)

	require.NoError(t, ctx.Register(&Echo{}))
	c, err := ctx.Channel("echo://;name=echo", types.Props{
		types.KeyScheme: "yamls://[{name: Data, id: 10}]",
	})
	require.NoError(t, err)
	cfg := c.Config()

	assert.Error(t, cfg.Set("info.a", "b"))
	assert.Error(t, cfg.Unlink("url"))

	_, err = engine.ChannelCast[*Echo](c)
	require.NoError(t, err)
	_, err = engine.ChannelCast[*common.Null](c)
	require.Error(t, err)

	assert.Equal(t, types.StateClosed, c.State())
	assert.Equal(t, "Closed", cfg.Get("state", ""))
	assert.Empty(t, childNames(c))

	require.Error(t, c.Post(&types.Message{}))
	assert.NotEqual(t, "yes", cfg.Get("info.echo", ""))

	require.NoError(t, c.Open())
	assert.Equal(t, "yes", cfg.Get("info.echo", ""))
	assert.Equal(t, []string{"echo/child", "orphan"}, childNames(c))
	assert.Equal(t, types.StateOpening, c.State())
	assert.Equal(t, "Opening", cfg.Get("state", ""))

	require.NoError(t, c.Process(context.Background()))
	assert.Equal(t, types.StateActive, c.State())
	assert.Equal(t, "Active", cfg.Get("state", ""))

	require.NotNil(t, c.Scheme())
	require.Len(t, c.Scheme().Messages, 1)
	assert.Equal(t, "Data", c.Scheme().Messages[0].Name)
	assert.Equal(t, int32(10), c.Scheme().Messages[0].MsgID)

	require.NotNil(t, c.SchemeControl())
	require.Len(t, c.SchemeControl().Messages, 1)
	assert.Equal(t, "Control", c.SchemeControl().Messages[0].Name)
	assert.Equal(t, int32(10), c.SchemeControl().Messages[0].MsgID)

	var a accum
	c.CallbackAdd(a.callback)

	now := time.Now().UnixNano()
	require.NoError(t, c.Post(&types.Message{Seq: 100, Time: now, Data: []byte("xxx")}))
	require.Len(t, a.result, 1)
	assert.Equal(t, int64(100), a.result[0].Seq)
	assert.Equal(t, []byte("xxx"), a.result[0].Data)
	assert.Equal(t, now, a.result[0].Time)

	require.NoError(t, c.Close())
	assert.Equal(t, []string{"orphan"}, childNames(c))
	assert.Equal(t, types.StateClosing, c.State())
	require.Error(t, c.Post(&types.Message{}))
	require.NoError(t, c.Process(context.Background()))
	assert.Equal(t, types.StateClosed, c.State())

	c.Destroy()
	assert.Nil(t, ctx.Get("echo"))
	// the orphan is owned by the context and survives parent destruction
	assert.NotNil(t, ctx.Get("orphan"))

	require.NoError(t, ctx.Unregister(&Echo{}))
	_, err = ctx.Channel("echo://;name=echo2")
	require.Error(t, err)
}

func TestOpenParamNormalization(t *testing.T) {
	ctx := engine.NewContext(types.NewConfig(types.WithLogger(types.NopLogger())))
	require.NoError(t, ctx.Register(&OpenTest{}))

	c, err := ctx.Channel("open-test://;name=open")
	require.NoError(t, err)

	require.Error(t, c.Open())
	assert.Equal(t, types.StateError, c.State())
	require.NoError(t, c.Close())
	assert.Equal(t, map[string]interface{}{}, c.Config().AsDict()["open"])

	want := map[string]interface{}{"a": "1", "b": "2", "c": "3"}

	require.NoError(t, c.Open("a=1;b=2;c=3"))
	assert.Equal(t, types.StateActive, c.State())
	assert.Equal(t, want, c.Config().AsDict()["open"])
	require.NoError(t, c.Close())

	require.NoError(t, c.Open("c=3;b=2;a=1"))
	assert.Equal(t, types.StateActive, c.State())
	assert.Equal(t, want, c.Config().AsDict()["open"])
	require.NoError(t, c.Close())

	require.NoError(t, c.Open("a=1;b=2", types.Props{"c": "3"}))
	assert.Equal(t, types.StateActive, c.State())
	assert.Equal(t, want, c.Config().AsDict()["open"])
	require.NoError(t, c.Close())

	require.NoError(t, c.Open(map[string]string{"a": "1", "b": "2", "c": "3"}))
	assert.Equal(t, types.StateActive, c.State())
	require.NoError(t, c.Close())

	// an errored channel requires an explicit close before the next open
	require.Error(t, c.Open())
	assert.Equal(t, types.StateError, c.State())
	require.Error(t, c.Open("a=1;b=2;c=3"))
	require.NoError(t, c.Close())
	require.NoError(t, c.Open("a=1;b=2;c=3"))
	require.NoError(t, c.Close())
}

func TestDerivedImplementations(t *testing.T) {
	ctx := engine.NewContext(types.NewConfig(types.WithLogger(types.NopLogger())))
	require.NoError(t, ctx.Register(&Echo{}))

	v1, err := ctx.Channel("echo://;name=echo")
	require.NoError(t, err)
	require.NoError(t, v1.Open())
	assert.Equal(t, "yes", v1.Config().Get("info.echo", ""))

	require.NoError(t, ctx.Register(&EchoV2{}))
	v2, err := ctx.Channel("echo-v2://;name=echo-v2")
	require.NoError(t, err)
	require.NoError(t, v2.Open())
	assert.Equal(t, "v2", v2.Config().Get("info.echo", ""))

	v11, err := ctx.Channel("echo://;name=echo-v1-1")
	require.NoError(t, err)
	require.NoError(t, v11.Open())
	assert.Equal(t, "yes", v11.Config().Get("info.echo", ""))
}

func TestCallbackChangesApplyToNextMessage(t *testing.T) {
	ctx := engine.NewContext(types.NewConfig(types.WithLogger(types.NopLogger())))
	require.NoError(t, ctx.Register(&Echo{}))

	c, err := ctx.Channel("echo://;name=echo")
	require.NoError(t, err)
	require.NoError(t, c.Open())
	require.NoError(t, c.Process(context.Background()))

	var late accum
	var first []int64
	c.CallbackAdd(func(ch types.Channel, msg *types.Message) {
		if msg.Type != types.MsgData {
			return
		}
		first = append(first, msg.Seq)
		if len(first) == 1 {
			ch.CallbackAdd(late.callback)
		}
	})

	require.NoError(t, c.Post(&types.Message{Seq: 1, Data: []byte("a")}))
	assert.Equal(t, []int64{1}, first)
	// the subscriber added during delivery must not see the current message
	assert.Empty(t, late.result)

	require.NoError(t, c.Post(&types.Message{Seq: 2, Data: []byte("b")}))
	assert.Equal(t, []int64{1, 2}, first)
	require.Len(t, late.result, 1)
	assert.Equal(t, int64(2), late.result[0].Seq)
}

func TestStateMatchesConfigEverywhere(t *testing.T) {
	ctx := engine.NewContext(types.NewConfig(types.WithLogger(types.NopLogger())))
	require.NoError(t, ctx.Register(&Echo{}))

	c, err := ctx.Channel("echo://;name=echo")
	require.NoError(t, err)

	check := func() {
		assert.Equal(t, c.State().String(), c.Config().Get("state", ""))
	}
	check()
	require.NoError(t, c.Open())
	check()
	require.NoError(t, c.Process(context.Background()))
	check()
	require.NoError(t, c.Close())
	check()
	require.NoError(t, c.Process(context.Background()))
	check()
}
