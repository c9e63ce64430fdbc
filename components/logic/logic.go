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

// Package logic provides the embeddable base of coordinator channels.
// 包 logic 提供协调器通道的可嵌入基础。
//
// A logic channel binds named groups of already-constructed channels given in
// URL parameters of the form `tll.channel.<role>=<name>[,<name>...]`, and
// funnels every Data and Control message of every bound channel into the
// embedding implementation's OnChannelMessage hook. It does not own the
// channels; it only subscribes to them.
// 逻辑通道绑定以 `tll.channel.<role>=<name>[,<name>...]` 形式的 URL 参数给出的
// 已构建通道命名组，并将每个绑定通道的每条 Data 和 Control 消息汇入嵌入实现的
// OnChannelMessage 钩子。它不拥有这些通道，只是订阅它们。
package logic

import (
	"context"
	"strings"
	"time"

	"github.com/bittoy/channel/types"
)

// MessageHandler is the hook the embedding implementation must provide.
// It is invoked for every Data and Control message on every bound channel;
// ordering across channels is the dispatch order of the enclosing loop.
// MessageHandler 是嵌入实现必须提供的钩子。每个绑定通道上的每条 Data 和
// Control 消息都会调用它；跨通道的顺序是外层循环的派发顺序。
type MessageHandler interface {
	OnChannelMessage(ch types.Channel, msg *types.Message)
}

// Logic is the embeddable multi-channel coordinator implementation. Embedding
// types provide New, Proto and an Init that calls InitLogic with themselves,
// then validate role arity against Channels().
// Logic 是可嵌入的多通道协调器实现。嵌入类型提供 New、Proto 和一个以自身调用
// InitLogic 的 Init，然后针对 Channels() 校验角色数量。
type Logic struct {
	base    types.BaseChannel
	handler MessageHandler

	roles    []string
	channels map[string][]types.Channel

	subs []subscription
}

type subscription struct {
	ch types.Channel
	id int
}

// InitLogic resolves every named channel of every `tll.channel.<role>`
// parameter against the context. A missing channel fails construction.
// InitLogic 针对上下文解析每个 `tll.channel.<role>` 参数的每个命名通道。
// 通道缺失使构建失败。
func (l *Logic) InitLogic(self types.Impl, base types.BaseChannel, url *types.Url, master types.Channel) error {
	l.base = base
	handler, ok := self.(MessageHandler)
	if !ok {
		return types.ConstructionError(base.Name(), "logic implementation must provide OnChannelMessage")
	}
	l.handler = handler
	l.channels = make(map[string][]types.Channel)

	for _, k := range url.Keys() {
		if !strings.HasPrefix(k, types.KeyChannelPrefix) {
			continue
		}
		role := k[len(types.KeyChannelPrefix):]
		if role == "" {
			return types.ConstructionError(base.Name(), "empty channel role in %q", k)
		}
		var group []types.Channel
		for _, name := range strings.Split(url.GetParam(k, ""), ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				return types.ConstructionError(base.Name(), "empty channel name in role %q", role)
			}
			ch := base.Context().Get(name)
			if ch == nil {
				return types.ConstructionError(base.Name(), "channel %q of role %q not found", name, role)
			}
			group = append(group, ch)
		}
		l.roles = append(l.roles, role)
		l.channels[role] = group
	}
	return nil
}

// Channels returns the resolved role groups.
// Channels 返回解析后的角色组。
func (l *Logic) Channels() map[string][]types.Channel {
	return l.channels
}

// Role returns one role group.
// Role 返回一个角色组。
func (l *Logic) Role(name string) []types.Channel {
	return l.channels[name]
}

// Base returns the logic's own base channel.
// Base 返回逻辑自身的基础通道。
func (l *Logic) Base() types.BaseChannel {
	return l.base
}

// Policy declares the lifecycle behavior: the coordinator itself has no
// transport, open is synchronous and processing is never required.
func (l *Logic) Policy() types.Policy {
	p := types.DefaultPolicy()
	p.Process = types.ProcessNever
	return p
}

// Open subscribes to every bound channel. A channel bound under several roles
// is subscribed once.
// Open 订阅每个绑定通道。绑定在多个角色下的通道只订阅一次。
func (l *Logic) Open(props types.Props) error {
	seen := make(map[types.Channel]bool)
	for _, role := range l.roles {
		for _, ch := range l.channels[role] {
			if seen[ch] {
				continue
			}
			seen[ch] = true
			id := ch.CallbackAdd(l.onMessage)
			l.subs = append(l.subs, subscription{ch: ch, id: id})
		}
	}
	return nil
}

// Close removes the subscriptions; the bound channels stay untouched.
// Close 删除订阅；绑定的通道保持不变。
func (l *Logic) Close(force bool) error {
	for _, sub := range l.subs {
		sub.ch.CallbackDel(sub.id)
	}
	l.subs = nil
	return nil
}

func (l *Logic) Process(ctx context.Context) error { return nil }

// Post is not part of the coordinator contract.
func (l *Logic) Post(msg *types.Message) error {
	return types.ArgumentError(l.base.Name(), "logic channel does not accept posts")
}

func (l *Logic) Destroy() {}

// onMessage accounts rx statistics and the handler execution time, then hands
// the message to the embedding implementation.
func (l *Logic) onMessage(ch types.Channel, msg *types.Message) {
	if msg.Type != types.MsgData && msg.Type != types.MsgControl {
		return
	}
	stat := l.base.Stat()
	if stat == nil || msg.Type != types.MsgData {
		l.handler.OnChannelMessage(ch, msg)
		return
	}
	stat.Rx(len(msg.Data))
	start := time.Now()
	l.handler.OnChannelMessage(ch, msg)
	stat.Time(time.Since(start).Nanoseconds())
}
