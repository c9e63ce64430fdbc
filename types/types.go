/*
 * Copyright 2023 The RuleGo Authors.
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

// Package types defines the core interfaces, data structures, and contracts for the channel framework.
// 包 types 定义了通道框架的核心接口、数据结构和契约。
//
// This package serves as the foundation for the whole channel ecosystem, providing:
// 该包是整个通道生态系统的基础，提供：
//
//   - Core interfaces for channel implementations and the construction context
//     通道实现和构建上下文的核心接口
//   - Message structures for data flow between channels
//     通道间数据流转的消息结构
//   - Lifecycle state machine and policy types
//     生命周期状态机和策略类型
//   - Statistics blocks shared between channels and monitors
//     通道与监控器共享的统计块
//
// # Architecture Overview
// # 架构概览
//
// A channel is an addressable endpoint carrying discrete typed messages between
// producers and consumers over arbitrary transports. Channels are assembled from
// a registry of implementations selected by URL scheme, and can be stacked via
// prefix channels (filters wrapping one inner channel) and logic channels
// (coordinators of already-constructed channels).
// 通道是在生产者和消费者之间通过任意传输承载离散类型化消息的可寻址端点。
// 通道根据 URL scheme 从实现注册表组装，并可以通过前缀通道（包装一个内部通道的
// 过滤器）和逻辑通道（协调已构建通道）进行堆叠。
//
//  1. Messages flow through channels driven by a cooperative loop
//     消息在协作式事件循环驱动下流经通道
//  2. Each implementation encapsulates one transport or filter
//     每个实现封装一种传输或过滤器
//  3. Prefix and logic composition builds pipelines from simple parts
//     前缀与逻辑组合用简单部件搭建管道
//
// # Example Usage
// # 使用示例
//
//	// Implement a custom channel
//	// 实现自定义通道
//	type Echo struct{ base types.BaseChannel }
//
//	func (e *Echo) New() types.Impl      { return &Echo{} }
//	func (e *Echo) Proto() string        { return "echo" }
//	func (e *Echo) Policy() types.Policy { return types.DefaultPolicy() }
//	func (e *Echo) Init(base types.BaseChannel, url *types.Url, master types.Channel) error {
//		e.base = base
//		return nil
//	}
//	func (e *Echo) Open(props types.Props) error      { return nil }
//	func (e *Echo) Close(force bool) error            { return nil }
//	func (e *Echo) Process(ctx context.Context) error { return nil }
//	func (e *Echo) Post(msg *types.Message) error {
//		e.base.CallbackData(msg.Copy())
//		return nil
//	}
//	func (e *Echo) Destroy() {}
//
//	// Register and construct
//	// 注册并构建
//	ctx.Register(&Echo{})
//	c, err := ctx.Channel("echo://;name=echo")
package types

import (
	"context"

	"github.com/bittoy/channel/config"
	"github.com/bittoy/channel/scheme"
)

// Props is the normalized form of open and construction parameters: a flat
// string key to string value mapping. Parameter ordering in `k=v;k=v` input
// never affects behavior, comparisons are done on the normalized map.
// Props 是打开参数和构建参数的规范化形式：扁平的字符串键值映射。
// `k=v;k=v` 输入中的参数顺序不影响行为，比较在规范化映射上进行。
type Props map[string]string

// Copy creates a shallow copy of the Props.
// Copy 创建 Props 的浅拷贝。
func (p Props) Copy() Props {
	if p == nil {
		return nil
	}
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Get retrieves a value with a default.
// Get 检索值，缺失时返回默认值。
func (p Props) Get(key, def string) string {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Has checks if a key exists.
// Has 检查键是否存在。
func (p Props) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Callback receives messages produced by a channel. Data and Control messages
// are delivered to all subscribers in subscription order; state transitions
// are delivered as State messages. The message buffer is only valid for the
// duration of the call, use Message.Copy to retain it.
// Callback 接收通道产生的消息。Data 和 Control 消息按订阅顺序投递给所有订阅者；
// 状态迁移以 State 消息投递。消息缓冲区仅在调用期间有效，保留请使用 Message.Copy。
type Callback func(ch Channel, msg *Message)

// Channel is the public handle of a constructed channel. All operations of a
// channel happen on its owning loop's goroutine; only the construction context
// is safe for concurrent use.
// Channel 是已构建通道的公共句柄。通道的所有操作都发生在其所属循环的 goroutine 上；
// 只有构建上下文可以并发使用。
type Channel interface {
	// Name returns the channel name, unique within its context.
	// Name 返回通道名称，在其上下文内唯一。
	Name() string

	// State returns the current lifecycle state.
	// State 返回当前生命周期状态。
	State() State

	// Config returns the channel's configuration tree. The `info`, `url`,
	// `init` and `open` subtrees are write-protected views.
	// Config 返回通道的配置树。`info`、`url`、`init` 和 `open` 子树是写保护视图。
	Config() *config.Config

	// Open starts the channel. Each parameter is either a `k=v;k=v` string or
	// a Props mapping; later parameters override earlier ones. The merged
	// parameters are stored under `config.open` on success.
	// Open 启动通道。每个参数要么是 `k=v;k=v` 字符串要么是 Props 映射；
	// 后面的参数覆盖前面的。合并后的参数在成功时存储在 `config.open` 下。
	Open(params ...interface{}) error

	// Close stops the channel. With a Long close policy the channel enters
	// Closing and is drained by Process.
	// Close 停止通道。Long 关闭策略下通道进入 Closing，由 Process 排空。
	Close() error

	// Process performs one unit of work: at most one transport syscall.
	// Process 执行一个工作单元：至多一次传输系统调用。
	Process(ctx context.Context) error

	// Post submits a message. Non-blocking: fails when capacity is unavailable.
	// Post 提交消息。非阻塞：容量不足时失败。
	Post(msg *Message) error

	// CallbackAdd subscribes a receiver and returns its handle.
	// Modifications during delivery take effect on the next message.
	// CallbackAdd 订阅接收者并返回其句柄。投递期间的修改对下一条消息生效。
	CallbackAdd(cb Callback) int

	// CallbackDel removes a subscription by handle.
	// CallbackDel 按句柄删除订阅。
	CallbackDel(id int)

	// Children returns the ordered list of child channels.
	// Children 返回有序的子通道列表。
	Children() []Channel

	// Scheme returns the data scheme attached at construction, or nil.
	// Scheme 返回构建时附加的数据 scheme，可能为 nil。
	Scheme() *scheme.Scheme

	// SchemeControl returns the control scheme, or nil.
	// SchemeControl 返回控制 scheme，可能为 nil。
	SchemeControl() *scheme.Scheme

	// DCaps returns the current data capability bits.
	// DCaps 返回当前数据能力位。
	DCaps() DCaps

	// Master returns the channel named by the `master` parameter, or nil.
	// Master 返回由 `master` 参数指定的通道，可能为 nil。
	Master() Channel

	// Context returns the owning construction context.
	// Context 返回所属构建上下文。
	Context() Context

	// Impl returns the underlying implementation, used for typed casts.
	// Impl 返回底层实现，用于类型化转换。
	Impl() Impl

	// Destroy closes the channel and removes it from the context. Orphan
	// children survive, owned children are destroyed. Never fails.
	// Destroy 关闭通道并将其从上下文移除。孤儿子通道存活，被拥有的子通道被销毁。
	// 永不失败。
	Destroy()
}

// BaseChannel is the privileged view of a channel handed to its implementation
// at Init. It extends the public handle with the operations only the
// implementation may perform: state transitions, message delivery, child
// management and internal configuration writes.
// BaseChannel 是在 Init 时交给实现的通道特权视图。它在公共句柄之上扩展了
// 只有实现才能执行的操作：状态迁移、消息投递、子通道管理和内部配置写入。
type BaseChannel interface {
	Channel

	// SetState transitions the state machine and emits a State message.
	// SetState 迁移状态机并发出 State 消息。
	SetState(s State)

	// CallbackData delivers a Data or Control message to all subscribers,
	// updating rx statistics.
	// CallbackData 将 Data 或 Control 消息投递给所有订阅者，并更新 rx 统计。
	CallbackData(msg *Message)

	// ChildAdd attaches a child channel and announces it with a Channel
	// message. A child whose name is not under `parent/` is an orphan: it is
	// owned by the context and survives parent close and destroy.
	// ChildAdd 附加子通道并通过 Channel 消息进行通告。名称不在 `parent/` 之下的
	// 子通道是孤儿：由上下文拥有，父通道关闭或销毁后仍然存活。
	ChildAdd(c Channel) error

	// ChildDel detaches a child channel.
	// ChildDel 分离子通道。
	ChildDel(c Channel) error

	// ChildUrl builds a child construction URL with name `parent/suffix`.
	// ChildUrl 构建名称为 `parent/suffix` 的子通道构建 URL。
	ChildUrl(url string, suffix string) (*Url, error)

	// ConfigSet writes an internal configuration value, bypassing the write
	// guard of protected subtrees. Writes into `info.*` performed inside Open
	// are visible to readers before the channel reaches Active.
	// ConfigSet 写入内部配置值，绕过受保护子树的写保护。Open 内对 `info.*`
	// 的写入在通道到达 Active 之前即对读者可见。
	ConfigSet(path, value string)

	// SetScheme replaces the data scheme.
	// SetScheme 替换数据 scheme。
	SetScheme(s *scheme.Scheme)

	// SetSchemeControl replaces the control scheme.
	// SetSchemeControl 替换控制 scheme。
	SetSchemeControl(s *scheme.Scheme)

	// DCapsSet sets data capability bits.
	// DCapsSet 设置数据能力位。
	DCapsSet(caps DCaps)

	// DCapsClear clears data capability bits.
	// DCapsClear 清除数据能力位。
	DCapsClear(caps DCaps)

	// Stat returns the statistics block, or nil when stats are disabled.
	// Stat 返回统计块，统计未启用时为 nil。
	Stat() *Stat

	// Logger returns the context logger.
	// Logger 返回上下文日志记录器。
	Logger() Logger
}

// Impl is the channel implementation trait. A registered Impl value acts as a
// prototype: New creates an instance for each constructed channel, and the
// Policy struct replaces the open recursion of the source design with
// factory-declared behavior flags.
// Impl 是通道实现特征。已注册的 Impl 值充当原型：New 为每个构建的通道创建实例，
// Policy 结构体用工厂声明的行为标志取代了源设计中的开放递归。
type Impl interface {
	// New creates a fresh instance for one channel. Instances are never shared.
	// New 为一个通道创建全新实例。实例从不共享。
	New() Impl

	// Proto returns the URL scheme tag. Prefix implementations end in `+`.
	// Proto 返回 URL scheme 标签。前缀实现以 `+` 结尾。
	Proto() string

	// Policy declares the lifecycle behavior. It is read after Init so the
	// implementation may adapt it to construction parameters.
	// Policy 声明生命周期行为。在 Init 之后读取，实现可根据构建参数调整。
	Policy() Policy

	// Init binds the instance to its base channel. Construction parameters
	// arrive in the URL; master carries the resolved `master` channel.
	// Init 将实例绑定到其基础通道。构建参数通过 URL 到达；master 携带解析后的
	// `master` 通道。
	Init(base BaseChannel, url *Url, master Channel) error

	// Open activates the transport with the merged open parameters.
	// Open 使用合并后的打开参数激活传输。
	Open(props Props) error

	// Close deactivates the transport. force requests immediate shutdown.
	// Close 停用传输。force 请求立即关闭。
	Close(force bool) error

	// Process performs one unit of work.
	// Process 执行一个工作单元。
	Process(ctx context.Context) error

	// Post submits one message to the transport.
	// Post 向传输提交一条消息。
	Post(msg *Message) error

	// Destroy releases resources. Must not fail and must be idempotent.
	// Destroy 释放资源。不得失败且必须幂等。
	Destroy()
}

// Context is the registry-and-namespace root for a set of channels. It is
// thread-safe for Register, Channel and Get.
// Context 是一组通道的注册表和命名空间根。Register、Channel 和 Get 线程安全。
type Context interface {
	// Register adds an implementation prototype. A duplicate proto tag fails.
	// Register 添加实现原型。重复的 proto 标签会失败。
	Register(impl Impl) error

	// Unregister removes an implementation; later constructions of its tag fail.
	// Unregister 移除实现；之后对其标签的构建会失败。
	Unregister(impl Impl) error

	// Alias adds a URL template alias. A duplicate name fails.
	// Alias 添加 URL 模板别名。重复名称会失败。
	Alias(name, template string) error

	// Channel parses the URL, expands aliases, constructs the leaf and wraps
	// it in each prefix, registers the result by name and returns it.
	// Construction errors surface synchronously, no partial channel is
	// observable.
	// Channel 解析 URL、展开别名、构建叶子并用每个前缀包装，按名称注册结果并
	// 返回。构建错误同步出现，不会观察到部分构建的通道。
	Channel(url string, overrides ...Props) (Channel, error)

	// Get returns a channel by name, or nil.
	// Get 按名称返回通道，可能为 nil。
	Get(name string) Channel

	// SchemeLoad parses a scheme source URL (`yamls://...` or `yaml://path`).
	// Parsed schemes are cached by source.
	// SchemeLoad 解析 scheme 源 URL（`yamls://...` 或 `yaml://path`）。
	// 已解析的 scheme 按源缓存。
	SchemeLoad(url string) (*scheme.Scheme, error)

	// StatList returns the stat blocks of channels constructed with stat=yes.
	// StatList 返回使用 stat=yes 构建的通道的统计块。
	StatList() []*Stat

	// Config returns the runtime configuration of the context.
	// Config 返回上下文的运行时配置。
	Config() Config
}
