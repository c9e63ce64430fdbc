package common

import (
	"context"

	"github.com/bittoy/channel/types"
)

// Null 接受一切、不产生任何消息的通道。用作子通道占位和丢弃端。
// Null is a channel that accepts everything and emits nothing. Used as child
// placeholder and discard sink.
type Null struct {
	base types.BaseChannel
}

// Proto 返回 URL scheme 标签。
// Proto returns the URL scheme tag.
func (x *Null) Proto() string {
	return "null"
}

// New creates a new instance.
func (x *Null) New() types.Impl {
	return &Null{}
}

// Policy declares the lifecycle behavior.
func (x *Null) Policy() types.Policy {
	p := types.DefaultPolicy()
	p.Process = types.ProcessNever
	return p
}

// Init binds the instance to its base channel.
func (x *Null) Init(base types.BaseChannel, url *types.Url, master types.Channel) error {
	x.base = base
	return nil
}

func (x *Null) Open(props types.Props) error { return nil }

func (x *Null) Close(force bool) error { return nil }

func (x *Null) Process(ctx context.Context) error { return nil }

// Post discards the message.
func (x *Null) Post(msg *types.Message) error { return nil }

func (x *Null) Destroy() {}
