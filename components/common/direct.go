package common

import (
	"context"
	"errors"

	"github.com/bittoy/channel/types"
)

// Direct 成对的对等链路：一侧的 Post 同步投递到另一侧的回调。
// Direct is a paired peer link: Post on one side is delivered synchronously
// to the other side's subscribers. The slave names its pair with the
// `master` parameter.
//
//	a, _ := ctx.Channel("direct://;name=a")
//	b, _ := ctx.Channel("direct://;name=b;master=a")
type Direct struct {
	base   types.BaseChannel
	master *Direct
	peer   *Direct
}

// Proto returns the URL scheme tag.
func (x *Direct) Proto() string {
	return "direct"
}

// New creates a new instance.
func (x *Direct) New() types.Impl {
	return &Direct{}
}

// Policy declares the lifecycle behavior.
func (x *Direct) Policy() types.Policy {
	p := types.DefaultPolicy()
	p.Process = types.ProcessNever
	return p
}

// Init binds the instance and resolves the master side of the pair.
func (x *Direct) Init(base types.BaseChannel, url *types.Url, master types.Channel) error {
	x.base = base
	if master == nil {
		return nil
	}
	m, ok := master.Impl().(*Direct)
	if !ok {
		return types.ConstructionError(base.Name(), "master %s is not a direct channel", master.Name())
	}
	x.master = m
	return nil
}

// Open links the pair. The slave side attaches itself to the master.
func (x *Direct) Open(props types.Props) error {
	if x.master != nil {
		if x.master.peer != nil && x.master.peer != x {
			return errors.New("master already paired")
		}
		x.master.peer = x
		x.peer = x.master
	}
	return nil
}

// Close unlinks the pair.
func (x *Direct) Close(force bool) error {
	if x.peer != nil && x.peer.peer == x {
		x.peer.peer = nil
	}
	x.peer = nil
	return nil
}

func (x *Direct) Process(ctx context.Context) error { return nil }

// Post hands the message to the peer's subscribers. Without an active peer
// the message is dropped, matching the non-blocking contract.
func (x *Direct) Post(msg *types.Message) error {
	if x.peer == nil || x.peer.base.State() != types.StateActive {
		return nil
	}
	x.peer.base.CallbackData(msg)
	return nil
}

func (x *Direct) Destroy() {
	x.peer = nil
	x.master = nil
}
