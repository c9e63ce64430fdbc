/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package engine

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bittoy/channel/config"
	"github.com/bittoy/channel/scheme"
	"github.com/bittoy/channel/types"
)

// channel is the base implementation wrapping a types.Impl. It owns the
// lifecycle state machine, the child registry and the callback fan-out; the
// implementation provides transport behavior through the Impl contract.
// channel 是包装 types.Impl 的基础实现。它拥有生命周期状态机、子通道注册表
// 和回调扇出；实现通过 Impl 契约提供传输行为。
type channel struct {
	ctx  *Context
	impl types.Impl
	name string

	// policy is read from the implementation after Init so it can adapt to
	// construction parameters.
	// policy 在 Init 后从实现读取，使其可以适配构建参数。
	policy types.Policy

	state atomic.Int32
	dcaps atomic.Uint32

	cfg  *config.Config // public handle with write guards
	icfg *config.Config // internal handle for the channel itself

	url    *types.Url
	master types.Channel
	parent *channel

	children []types.Channel

	// callbacks is copy-on-write: delivery iterates a snapshot, so subscriber
	// changes during delivery take effect on the next message.
	// callbacks 写时复制：投递遍历快照，投递期间的订阅者变更对下一条消息生效。
	callbacks []cbEntry
	cbNextID  int

	scheme        *scheme.Scheme
	schemeControl *scheme.Scheme

	stat *types.Stat
	dump string
}

type cbEntry struct {
	id int
	cb types.Callback
}

var _ types.BaseChannel = (*channel)(nil)

func newChannel(ctx *Context, impl types.Impl, name string, url *types.Url) *channel {
	c := &channel{
		ctx:  ctx,
		impl: impl,
		name: name,
		url:  url,
	}
	c.cfg = config.New()
	c.icfg = c.cfg.Internal()
	c.cfg.SetFunc("state", func() string { return c.State().String() })
	resolved := url.String()
	_ = c.icfg.Set("init", resolved)
	// `url` mirrors `init` for compatibility with older consumers
	_ = c.icfg.Set("url", resolved)
	c.cfg.Protect("init")
	c.cfg.Protect("url")
	c.cfg.Protect("info")
	c.cfg.Protect("open")
	c.dump = url.GetParam(types.KeyDump, "")
	return c
}

func (c *channel) Name() string { return c.name }

func (c *channel) State() types.State {
	return types.State(c.state.Load())
}

func (c *channel) Config() *config.Config { return c.cfg }

func (c *channel) Context() types.Context { return c.ctx }

func (c *channel) Impl() types.Impl { return c.impl }

func (c *channel) Master() types.Channel { return c.master }

func (c *channel) Scheme() *scheme.Scheme { return c.scheme }

func (c *channel) SchemeControl() *scheme.Scheme { return c.schemeControl }

func (c *channel) SetScheme(s *scheme.Scheme) { c.scheme = s }

func (c *channel) SetSchemeControl(s *scheme.Scheme) { c.schemeControl = s }

func (c *channel) Stat() *types.Stat { return c.stat }

func (c *channel) Logger() types.Logger { return c.ctx.cfg.Logger }

func (c *channel) DCaps() types.DCaps {
	return types.DCaps(c.dcaps.Load())
}

func (c *channel) DCapsSet(caps types.DCaps) {
	for {
		cur := c.dcaps.Load()
		if c.dcaps.CompareAndSwap(cur, cur|uint32(caps)) {
			return
		}
	}
}

func (c *channel) DCapsClear(caps types.DCaps) {
	for {
		cur := c.dcaps.Load()
		if c.dcaps.CompareAndSwap(cur, cur&^uint32(caps)) {
			return
		}
	}
}

// SetState transitions the state machine and announces the transition with a
// State message.
// SetState 迁移状态机并用 State 消息通告迁移。
func (c *channel) SetState(s types.State) {
	old := types.State(c.state.Swap(int32(s)))
	if old == s {
		return
	}
	if c.dump != "" {
		c.Logger().Printf("channel %s: state %s -> %s", c.name, old, s)
	}
	c.callbackAll(&types.Message{
		Type:  types.MsgState,
		MsgID: int32(s),
		Time:  time.Now().UnixNano(),
	})
}

// Open implements the Closed -> Opening (-> Active) transition. A channel in
// Error state requires an explicit Close first; the state machine never
// auto-resets.
// Open 实现 Closed -> Opening (-> Active) 迁移。处于 Error 状态的通道需要先
// 显式 Close；状态机从不自动复位。
func (c *channel) Open(params ...interface{}) error {
	if st := c.State(); st != types.StateClosed {
		return types.ArgumentError(c.name, "open in state %s", st)
	}
	props, err := types.NormalizeParams(params...)
	if err != nil {
		return types.ArgumentError(c.name, "open parameters: %v", err)
	}
	c.SetState(types.StateOpening)
	if err := c.impl.Open(props); err != nil {
		if open := c.icfg.Sub("open"); open != nil {
			open.Clear()
		}
		c.Logger().Printf("channel %s: open failed: %s", c.name, err)
		c.SetState(types.StateError)
		if _, ok := err.(*types.ChannelError); ok {
			return err
		}
		return types.ArgumentError(c.name, "open: %v", err)
	}
	c.storeOpenParams(props)
	if c.policy.Open == types.OpenAuto && c.State() == types.StateOpening {
		c.SetState(types.StateActive)
	}
	return nil
}

func (c *channel) storeOpenParams(props types.Props) {
	open := c.icfg.Sub("open")
	if open != nil {
		open.Clear()
	}
	for k, v := range props {
		_ = c.icfg.Set("open."+k, v)
	}
}

// Close implements the close transitions. Close of an Error channel goes
// straight to Closed. Owned children are closed but not removed: they stay
// attached until the implementation deletes them or the parent is destroyed.
// Orphans are neither closed nor removed.
// Close 实现关闭迁移。Error 通道的 Close 直接到 Closed。被拥有的子通道被关闭
// 但不被移除：它们保持挂接，直到实现删除它们或父通道被销毁。孤儿既不被关闭
// 也不被移除。
func (c *channel) Close() error {
	st := c.State()
	switch st {
	case types.StateClosed, types.StateClosing, types.StateDestroy:
		return nil
	case types.StateError:
		if err := c.impl.Close(true); err != nil {
			c.Logger().Printf("channel %s: close failed: %s", c.name, err)
		}
		c.closeChildren()
		c.SetState(types.StateClosed)
		return nil
	}
	c.SetState(types.StateClosing)
	if err := c.impl.Close(false); err != nil {
		c.Logger().Printf("channel %s: close failed: %s", c.name, err)
	}
	c.closeChildren()
	if c.policy.Close == types.CloseShort {
		c.SetState(types.StateClosed)
	}
	return nil
}

// closeChildren propagates close to owned children. Detaching is left to the
// implementation (and to Destroy): a wrapping channel keeps its inner child
// across close and reopen.
// closeChildren 将关闭传播到被拥有的子通道。分离留给实现（以及 Destroy）：
// 包装通道在关闭和重新打开之间保留其内部子通道。
func (c *channel) closeChildren() {
	for _, child := range c.childSnapshot() {
		if c.orphan(child) {
			continue
		}
		_ = child.Close()
	}
}

// Process drives one unit of work of the implementation.
// Process 驱动实现的一个工作单元。
func (c *channel) Process(ctx context.Context) error {
	if c.State() == types.StateDestroy {
		return types.ArgumentError(c.name, "process on destroyed channel")
	}
	if c.policy.Process == types.ProcessNever {
		return nil
	}
	return c.impl.Process(ctx)
}

// Post submits a message, enforcing the per-state post policy. Non-blocking:
// capacity exhaustion surfaces as a transport error.
// Post 提交消息，强制执行按状态的 Post 策略。非阻塞：容量耗尽表现为传输错误。
func (c *channel) Post(msg *types.Message) error {
	switch st := c.State(); st {
	case types.StateActive:
	case types.StateOpening:
		if c.policy.PostOpening == types.PostDisable {
			return types.TransportError(c.name, "post in state %s", st)
		}
	case types.StateClosing:
		if c.policy.PostClosing == types.PostDisable {
			return types.TransportError(c.name, "post in state %s", st)
		}
	default:
		return types.TransportError(c.name, "post in state %s", st)
	}
	if msg.Time == 0 {
		msg.Time = time.Now().UnixNano()
	}
	if c.dump != "" {
		c.Logger().Printf("channel %s: post: type=%s msgid=%d seq=%d size=%d",
			c.name, msg.Type, msg.MsgID, msg.Seq, len(msg.Data))
	}
	if err := c.impl.Post(msg); err != nil {
		return err
	}
	if c.stat != nil && msg.Type == types.MsgData {
		c.stat.Tx(len(msg.Data))
	}
	return nil
}

// CallbackAdd subscribes a receiver. Delivery order follows subscription
// order.
// CallbackAdd 订阅接收者。投递顺序与订阅顺序一致。
func (c *channel) CallbackAdd(cb types.Callback) int {
	c.cbNextID++
	id := c.cbNextID
	next := make([]cbEntry, len(c.callbacks), len(c.callbacks)+1)
	copy(next, c.callbacks)
	c.callbacks = append(next, cbEntry{id: id, cb: cb})
	return id
}

// CallbackDel removes a subscription. A removal during delivery takes effect
// on the next message, never the current one.
// CallbackDel 删除订阅。投递期间的删除对下一条消息生效，绝不影响当前消息。
func (c *channel) CallbackDel(id int) {
	next := make([]cbEntry, 0, len(c.callbacks))
	for _, e := range c.callbacks {
		if e.id != id {
			next = append(next, e)
		}
	}
	c.callbacks = next
}

// CallbackData delivers a produced message to all subscribers, accounting rx
// statistics and the per-message processing duration.
// CallbackData 将产生的消息投递给所有订阅者，记录 rx 统计和每消息处理耗时。
func (c *channel) CallbackData(msg *types.Message) {
	if msg.Time == 0 {
		msg.Time = time.Now().UnixNano()
	}
	if c.dump != "" {
		c.Logger().Printf("channel %s: recv: type=%s msgid=%d seq=%d size=%d",
			c.name, msg.Type, msg.MsgID, msg.Seq, len(msg.Data))
	}
	if c.stat != nil && msg.Type == types.MsgData {
		c.stat.Rx(len(msg.Data))
		start := time.Now()
		c.callbackAll(msg)
		c.stat.Time(time.Since(start).Nanoseconds())
		return
	}
	c.callbackAll(msg)
}

func (c *channel) callbackAll(msg *types.Message) {
	for _, e := range c.callbacks {
		c.deliver(e.cb, msg)
	}
}

// deliver shields the channel from subscriber failures: a panic in a callback
// is logged and never aborts the producing channel.
// deliver 保护通道不受订阅者故障影响：回调中的 panic 被记录，绝不中止产生
// 消息的通道。
func (c *channel) deliver(cb types.Callback, msg *types.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.Logger().Printf("channel %s: callback panic: %v", c.name, r)
		}
	}()
	cb(c, msg)
}

// ChildAdd attaches a child. A child whose name is not under `parent/` is an
// orphan: the context owns it and it survives parent close and destroy.
// ChildAdd 附加子通道。名称不在 `parent/` 之下的子通道是孤儿：由上下文拥有，
// 在父通道关闭和销毁后存活。
func (c *channel) ChildAdd(child types.Channel) error {
	switch c.policy.Child {
	case types.ChildNone:
		return types.ArgumentError(c.name, "channel does not support children")
	case types.ChildSingle:
		if len(c.children) > 0 {
			return types.ArgumentError(c.name, "channel supports exactly one child")
		}
	}
	for _, have := range c.children {
		if have == child {
			return types.ArgumentError(c.name, "child %s already registered", child.Name())
		}
	}
	c.children = append(c.children, child)
	if cc, ok := child.(*channel); ok && !c.orphan(child) {
		cc.parent = c
	}
	c.callbackAll(&types.Message{
		Type:  types.MsgChannel,
		MsgID: types.MsgChannelAdd,
		Time:  time.Now().UnixNano(),
		Data:  []byte(child.Name()),
	})
	return nil
}

// ChildDel detaches a child.
// ChildDel 分离子通道。
func (c *channel) ChildDel(child types.Channel) error {
	for i, have := range c.children {
		if have != child {
			continue
		}
		c.children = append(c.children[:i], c.children[i+1:]...)
		if cc, ok := child.(*channel); ok && cc.parent == c {
			cc.parent = nil
		}
		c.callbackAll(&types.Message{
			Type:  types.MsgChannel,
			MsgID: types.MsgChannelDelete,
			Time:  time.Now().UnixNano(),
			Data:  []byte(child.Name()),
		})
		return nil
	}
	return types.ArgumentError(c.name, "child %s not registered", child.Name())
}

func (c *channel) orphan(child types.Channel) bool {
	return !strings.HasPrefix(child.Name(), c.name+"/")
}

func (c *channel) childSnapshot() []types.Channel {
	return append([]types.Channel(nil), c.children...)
}

func (c *channel) Children() []types.Channel {
	return c.childSnapshot()
}

// ChildUrl parses a child construction URL and names it `parent/suffix`.
// ChildUrl 解析子通道构建 URL 并将其命名为 `parent/suffix`。
func (c *channel) ChildUrl(url string, suffix string) (*types.Url, error) {
	u, err := types.ParseUrl(url)
	if err != nil {
		return nil, err
	}
	u.SetParam(types.KeyName, c.name+"/"+suffix)
	return u, nil
}

func (c *channel) ConfigSet(path, value string) {
	_ = c.icfg.Set(path, value)
}

// Destroy force-closes the channel, destroys owned children, detaches orphans
// and removes the channel from its context. Destructors never raise.
// Destroy 强制关闭通道，销毁被拥有的子通道，分离孤儿，并将通道从其上下文移除。
// 析构永不失败。
func (c *channel) Destroy() {
	if c.State() == types.StateDestroy {
		return
	}
	if c.State() != types.StateClosed {
		if err := c.impl.Close(true); err != nil {
			c.Logger().Printf("channel %s: close failed: %s", c.name, err)
		}
		c.SetState(types.StateClosed)
	}
	for _, child := range c.childSnapshot() {
		if c.orphan(child) {
			_ = c.ChildDel(child)
			continue
		}
		_ = c.ChildDel(child)
		child.Destroy()
	}
	c.impl.Destroy()
	c.SetState(types.StateDestroy)
	c.callbacks = nil
	c.ctx.remove(c)
}
