package common

import (
	"context"

	"github.com/bittoy/channel/utils/maps"

	"github.com/bittoy/channel/types"
)

// MemConfiguration Mem 组件的配置结构
// MemConfiguration configures the mem:// ring pair.
type MemConfiguration struct {
	// Size 每个方向环形队列的消息数上限
	// Size is the per-direction ring capacity in messages.
	Size int `map:"size"`
}

// Mem 成对的有界内存环：Post 入队到对端的环，Process 出队一条消息并投递。
// Mem is a paired bounded in-memory ring: Post enqueues into the peer's ring,
// Process dequeues one message and delivers it. Post fails when the ring is
// full, it never blocks. The two sides may live on different loops; the rings
// are the only shared state.
//
//	i, _ := ctx.Channel("mem://;name=input")
//	o, _ := ctx.Channel("mem://;name=output;master=input")
type Mem struct {
	base types.BaseChannel

	// Config 节点配置
	Config MemConfiguration

	master *Mem
	peer   *Mem

	in chan *types.Message
}

// Proto returns the URL scheme tag.
func (x *Mem) Proto() string {
	return "mem"
}

// New creates a new instance.
func (x *Mem) New() types.Impl {
	return &Mem{Config: MemConfiguration{Size: 64}}
}

// Policy declares the lifecycle behavior.
func (x *Mem) Policy() types.Policy {
	return types.DefaultPolicy()
}

// Init parses the ring size and resolves the master side of the pair.
func (x *Mem) Init(base types.BaseChannel, url *types.Url, master types.Channel) error {
	x.base = base
	if err := maps.Map2Struct(url.Params(), &x.Config); err != nil {
		return err
	}
	if x.Config.Size <= 0 {
		return types.ConstructionError(base.Name(), "ring size must be positive, got %d", x.Config.Size)
	}
	x.in = make(chan *types.Message, x.Config.Size)
	if master == nil {
		return nil
	}
	m, ok := master.Impl().(*Mem)
	if !ok {
		return types.ConstructionError(base.Name(), "master %s is not a mem channel", master.Name())
	}
	x.master = m
	return nil
}

// Open links the pair and enables processing.
func (x *Mem) Open(props types.Props) error {
	if x.master != nil {
		x.master.peer = x
		x.peer = x.master
	}
	x.base.DCapsSet(types.DCapsProcess)
	return nil
}

// Close unlinks the pair and drains the ring.
func (x *Mem) Close(force bool) error {
	if x.peer != nil && x.peer.peer == x {
		x.peer.peer = nil
	}
	x.peer = nil
	for {
		select {
		case <-x.in:
		default:
			x.base.DCapsClear(types.DCapsProcess | types.DCapsPending)
			return nil
		}
	}
}

// Process dequeues one message and delivers it to the subscribers.
func (x *Mem) Process(ctx context.Context) error {
	select {
	case msg := <-x.in:
		x.base.CallbackData(msg)
		if len(x.in) == 0 {
			x.base.DCapsClear(types.DCapsPending)
		}
		return nil
	default:
		x.base.DCapsClear(types.DCapsPending)
		return nil
	}
}

// Post enqueues a copy of the message into the peer's ring.
func (x *Mem) Post(msg *types.Message) error {
	if x.peer == nil {
		return types.TransportError(x.base.Name(), "mem channel has no peer")
	}
	select {
	case x.peer.in <- msg.Copy():
		x.peer.base.DCapsSet(types.DCapsPending)
		return nil
	default:
		return types.TransportError(x.base.Name(), "ring full, %d messages pending", len(x.peer.in))
	}
}

func (x *Mem) Destroy() {
	x.peer = nil
	x.master = nil
}
