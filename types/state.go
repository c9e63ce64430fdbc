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

package types

// State is the channel lifecycle state. The state machine is deterministic:
// State 是通道生命周期状态。状态机是确定性的：
//
//	Closed --open--> Opening --process--> Active
//	Active --close--> Closing --process--> Closed
//	any    --fatal--> Error --close--> Closed
//	Closed --destroy--> Destroy
//
// Opening and Closing are transient states exited by the channel's own
// Process step. A channel in Error requires an explicit Close before the
// next Open; the state machine never auto-resets.
// Opening 和 Closing 是由通道自身 Process 步骤退出的瞬态。处于 Error 的通道
// 在下一次 Open 之前需要显式 Close；状态机从不自动复位。
type State int32

const (
	StateClosed State = iota
	StateOpening
	StateActive
	StateClosing
	StateError
	StateDestroy
)

// String returns the state name as stored under the channel's `state`
// configuration key.
// String 返回状态名称，与通道 `state` 配置键下存储的一致。
func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpening:
		return "Opening"
	case StateActive:
		return "Active"
	case StateClosing:
		return "Closing"
	case StateError:
		return "Error"
	case StateDestroy:
		return "Destroy"
	}
	return "Unknown"
}

// DCaps are the data capability bits a channel reports to its driving loop.
// DCaps 是通道向其驱动循环报告的数据能力位。
type DCaps uint32

const (
	// DCapsZero means no processing is required.
	// DCapsZero 表示不需要处理。
	DCapsZero DCaps = 0
	// DCapsProcess requests periodic Process calls.
	// DCapsProcess 请求周期性 Process 调用。
	DCapsProcess DCaps = 1 << 0
	// DCapsPollIn requests read polling on the transport descriptor.
	// DCapsPollIn 请求对传输描述符进行读轮询。
	DCapsPollIn DCaps = 1 << 1
	// DCapsPollOut requests write polling on the transport descriptor.
	// DCapsPollOut 请求对传输描述符进行写轮询。
	DCapsPollOut DCaps = 1 << 2
	// DCapsPending marks buffered data that can be consumed without I/O.
	// DCapsPending 标记无需 I/O 即可消费的缓冲数据。
	DCapsPending DCaps = 1 << 3
	// DCapsSuspend pauses processing without losing the other bits.
	// DCapsSuspend 暂停处理但不丢失其他位。
	DCapsSuspend DCaps = 1 << 4
)

// OpenPolicy selects how Open reaches Active.
// OpenPolicy 选择 Open 如何到达 Active。
type OpenPolicy int

const (
	// OpenAuto transitions Closed to Active synchronously in Open.
	// OpenAuto 在 Open 中同步地从 Closed 迁移到 Active。
	OpenAuto OpenPolicy = iota
	// OpenManual transitions to Opening; the implementation completes the
	// transition from its Process step.
	// OpenManual 迁移到 Opening；实现从其 Process 步骤完成迁移。
	OpenManual
)

// ClosePolicy selects how Close reaches Closed.
// ClosePolicy 选择 Close 如何到达 Closed。
type ClosePolicy int

const (
	// CloseShort closes synchronously, the channel is Closed on return.
	// CloseShort 同步关闭，返回时通道已 Closed。
	CloseShort ClosePolicy = iota
	// CloseLong enters Closing, drained later by Process.
	// CloseLong 进入 Closing，稍后由 Process 排空。
	CloseLong
)

// ChildPolicy declares how many children an implementation keeps.
// ChildPolicy 声明实现保有多少子通道。
type ChildPolicy int

const (
	ChildNone ChildPolicy = iota
	ChildSingle
	ChildMany
)

// PostPolicy declares whether Post is allowed in a non-Active state.
// PostPolicy 声明在非 Active 状态下是否允许 Post。
type PostPolicy int

const (
	// PostDisable fails Post with a transport error in that state.
	// PostDisable 在该状态下使 Post 以传输错误失败。
	PostDisable PostPolicy = iota
	// PostEnable forwards Post to the implementation in that state.
	// PostEnable 在该状态下将 Post 转发给实现。
	PostEnable
)

// ProcessPolicy declares whether the channel needs Process calls at all.
// ProcessPolicy 声明通道是否需要 Process 调用。
type ProcessPolicy int

const (
	ProcessNormal ProcessPolicy = iota
	ProcessNever
)

// Policy carries the factory-declared lifecycle behavior of an
// implementation. It replaces the open recursion of the source design: the
// base channel consults the flags instead of virtual overrides.
// Policy 携带实现由工厂声明的生命周期行为。它取代了源设计中的开放递归：
// 基础通道查询标志而不是虚方法覆盖。
type Policy struct {
	Open        OpenPolicy
	Close       ClosePolicy
	Child       ChildPolicy
	Process     ProcessPolicy
	PostOpening PostPolicy
	PostClosing PostPolicy
}

// DefaultPolicy returns the policy of a plain synchronous channel: automatic
// open, short close, no children, posts rejected outside Active.
// DefaultPolicy 返回普通同步通道的策略：自动打开、短关闭、无子通道、
// Active 之外拒绝 Post。
func DefaultPolicy() Policy {
	return Policy{
		Open:        OpenAuto,
		Close:       CloseShort,
		Child:       ChildNone,
		Process:     ProcessNormal,
		PostOpening: PostDisable,
		PostClosing: PostDisable,
	}
}
