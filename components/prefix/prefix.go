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

// Package prefix provides the embeddable base of wrapping channels and two
// concrete message filters built on it.
// 包 prefix 提供包装通道的可嵌入基础以及基于它的两个具体消息过滤器。
//
// A prefix channel owns exactly one inner channel constructed from the URL
// remainder: `exprfilter+mem://;name=c` wraps a `mem://` channel named
// `c/exprfilter`. Lifecycle propagates in strict order: the prefix reaches
// Active only after the inner does, observed through the inner's State
// messages, and reaches Closed when the inner does. Posts forward to the
// inner unchanged unless the embedding implementation converts them.
// 前缀通道恰好拥有一个由 URL 剩余部分构建的内部通道。生命周期严格按序传播：
// 前缀只有在内部通道 Active 后才 Active（通过内部通道的 State 消息观察），
// 内部通道 Closed 时前缀也 Closed。除非嵌入实现进行转换，Post 原样转发给
// 内部通道。
package prefix

import (
	"context"
	"strings"

	"github.com/bittoy/channel/types"
)

// Registry collects the implementations of this package for the engine's
// default registry.
// Registry 为引擎的默认注册表收集本包的实现。
var Registry = &types.SafeImplSlice{}

func init() {
	Registry.Add(&ExprFilter{}, &JsFilter{})
}

// InputConverter converts messages arriving from the inner channel before
// they are re-emitted. Returning a nil message drops it; an error drops it
// and logs.
// InputConverter 在重新发出之前转换从内部通道到达的消息。返回 nil 消息表示
// 丢弃；错误表示丢弃并记录日志。
type InputConverter interface {
	ConvertInput(msg *types.Message) (*types.Message, error)
}

// OutputConverter converts posted messages before they are forwarded to the
// inner channel.
// OutputConverter 在转发给内部通道之前转换提交的消息。
type OutputConverter interface {
	ConvertOutput(msg *types.Message) (*types.Message, error)
}

// Prefix is the embeddable one-child wrapping implementation. Embedding types
// provide New, Proto and an Init that calls InitPrefix with themselves:
// Prefix 是可嵌入的单子通道包装实现。嵌入类型提供 New、Proto 和一个以自身
// 调用 InitPrefix 的 Init：
//
//	type Trace struct{ prefix.Prefix }
//
//	func (t *Trace) New() types.Impl { return &Trace{} }
//	func (t *Trace) Proto() string   { return "trace+" }
//	func (t *Trace) Init(base types.BaseChannel, url *types.Url, master types.Channel) error {
//		return t.InitPrefix(t, base, url, master)
//	}
type Prefix struct {
	base  types.BaseChannel
	inner types.Channel
	self  types.Impl
}

// InitPrefix constructs the inner channel from the URL remainder and names it
// `{parent}/{tag}` where tag is the prefix's own scheme tag without `+`. The
// inner configuration is grafted under the prefix's `python` key (legacy
// alias) and its `info` subtree is re-exported.
// InitPrefix 从 URL 剩余部分构建内部通道并将其命名为 `{parent}/{tag}`，
// tag 是前缀自身去掉 `+` 的 scheme 标签。内部配置嫁接在前缀的 `python` 键下
// （遗留别名），其 `info` 子树被重新导出。
func (p *Prefix) InitPrefix(self types.Impl, base types.BaseChannel, url *types.Url, master types.Channel) error {
	p.base = base
	p.self = self

	tokens := url.Chain()
	if len(tokens) < 2 || tokens[len(tokens)-1] == "" {
		return types.ConstructionError(base.Name(), "prefix %q requires an inner channel", tokens[0])
	}
	tag := strings.TrimSuffix(tokens[0], "+")

	inner := types.NewUrl(strings.Join(tokens[1:], ""), url.Host)
	for _, k := range url.Keys() {
		switch k {
		case types.KeyName, types.KeyStat:
			continue
		}
		inner.SetParam(k, url.GetParam(k, ""))
	}
	inner.SetParam(types.KeyName, base.Name()+"/"+tag)

	c, err := base.Context().Channel(inner.String())
	if err != nil {
		return err
	}
	p.inner = c
	if err := base.ChildAdd(c); err != nil {
		c.Destroy()
		return err
	}
	c.CallbackAdd(p.onInner)

	if base.Scheme() == nil {
		base.SetScheme(c.Scheme())
	}
	if base.SchemeControl() == nil {
		base.SetSchemeControl(c.SchemeControl())
	}

	base.Config().Mount("python", c.Config())
	p.exportInfo()
	return nil
}

// exportInfo mirrors the inner channel's info facts into the prefix's own
// info subtree. A copy, not a graft: facts the wrapper itself records stay in
// its own config and never land inside the wrapped transport. Refreshed on
// every inner state transition, so facts written during the inner's open are
// visible once the prefix turns Active.
// exportInfo 将内部通道的 info 事实镜像到前缀自身的 info 子树。是复制而非
// 嫁接：包装器自己记录的事实留在自己的配置中，绝不落入被包装的传输。
// 在内部通道每次状态迁移时刷新，因此内部打开期间写入的事实在前缀变为
// Active 时即可见。
func (p *Prefix) exportInfo() {
	src := p.inner.Config().Sub("info")
	if src == nil {
		return
	}
	if dst := p.base.Config().Internal().Sub("info"); dst != nil {
		if err := dst.Merge(src); err != nil {
			p.base.Logger().Printf("channel %s: info export failed: %s", p.base.Name(), err)
		}
	}
}

// Inner returns the wrapped channel.
// Inner 返回被包装的通道。
func (p *Prefix) Inner() types.Channel {
	return p.inner
}

// Base returns the prefix's own base channel.
// Base 返回前缀自身的基础通道。
func (p *Prefix) Base() types.BaseChannel {
	return p.base
}

// Policy declares the lifecycle behavior: manual open and long close, both
// completed by the inner channel's state transitions.
func (p *Prefix) Policy() types.Policy {
	return types.Policy{
		Open:        types.OpenManual,
		Close:       types.CloseLong,
		Child:       types.ChildSingle,
		Process:     types.ProcessNormal,
		PostOpening: types.PostDisable,
		PostClosing: types.PostDisable,
	}
}

// Open opens the inner channel; the prefix stays Opening until the inner
// reports Active.
func (p *Prefix) Open(props types.Props) error {
	return p.inner.Open(props)
}

// Close closes the inner channel; the prefix stays Closing until the inner
// reports Closed.
func (p *Prefix) Close(force bool) error {
	if p.inner == nil {
		return nil
	}
	return p.inner.Close()
}

// Process is idle: the loop drives the inner channel directly as a child.
func (p *Prefix) Process(ctx context.Context) error { return nil }

// Post forwards to the inner channel, converting first when the embedding
// implementation is an OutputConverter. Data, Control, addr, seq and time
// are preserved.
func (p *Prefix) Post(msg *types.Message) error {
	if oc, ok := p.self.(OutputConverter); ok {
		out, err := oc.ConvertOutput(msg)
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		msg = out
	}
	return p.inner.Post(msg)
}

func (p *Prefix) Destroy() {}

// onInner tracks the inner channel: state transitions drive the prefix's own
// lifecycle, data and control messages are re-emitted upward.
func (p *Prefix) onInner(ch types.Channel, msg *types.Message) {
	switch msg.Type {
	case types.MsgState:
		p.onInnerState(types.State(msg.MsgID))
	case types.MsgData, types.MsgControl:
		if ic, ok := p.self.(InputConverter); ok {
			out, err := ic.ConvertInput(msg)
			if err != nil {
				p.base.Logger().Printf("channel %s: input conversion failed: %s", p.base.Name(), err)
				return
			}
			if out == nil {
				return
			}
			msg = out
		}
		p.base.CallbackData(msg)
	}
}

func (p *Prefix) onInnerState(s types.State) {
	p.exportInfo()
	switch s {
	case types.StateActive:
		if p.base.State() == types.StateOpening {
			p.base.SetState(types.StateActive)
		}
	case types.StateClosed:
		if p.base.State() == types.StateClosing {
			p.base.SetState(types.StateClosed)
		}
	case types.StateError:
		if st := p.base.State(); st == types.StateOpening || st == types.StateActive {
			p.base.SetState(types.StateError)
		}
	}
}
