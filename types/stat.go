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

import (
	"math"
	"sync/atomic"
)

// Stat is the statistics block a channel contributes to the context stat
// list when constructed with stat=yes. Counters are updated with relaxed
// atomics on the channel's loop; Swap may be called from a monitor thread.
// Stat 是通道在以 stat=yes 构建时向上下文统计列表贡献的统计块。
// 计数器在通道循环上以宽松原子操作更新；Swap 可以从监控线程调用。
type Stat struct {
	name string

	rxMessages atomic.Int64
	rxBytes    atomic.Int64
	txMessages atomic.Int64
	txBytes    atomic.Int64

	timeCount atomic.Int64
	timeSum   atomic.Int64
	timeMin   atomic.Int64
	timeMax   atomic.Int64
}

// StatSnapshot is a point-in-time copy of the counters. Time durations are
// nanoseconds; Min is zero when Count is zero.
// StatSnapshot 是计数器的瞬时副本。时间为纳秒；Count 为零时 Min 为零。
type StatSnapshot struct {
	RxMessages int64
	RxBytes    int64
	TxMessages int64
	TxBytes    int64
	Time       TimeSnapshot
}

// TimeSnapshot aggregates per-message processing durations.
// TimeSnapshot 聚合每条消息的处理耗时。
type TimeSnapshot struct {
	Count int64
	Sum   int64
	Min   int64
	Max   int64
}

// NewStat creates a stat block named after its channel.
// NewStat 创建以其通道命名的统计块。
func NewStat(name string) *Stat {
	s := &Stat{name: name}
	s.timeMin.Store(math.MaxInt64)
	return s
}

// Name returns the owning channel name.
// Name 返回所属通道名称。
func (s *Stat) Name() string {
	return s.name
}

// Rx accounts one received message of the given size.
// Rx 记录一条给定大小的接收消息。
func (s *Stat) Rx(bytes int) {
	s.rxMessages.Add(1)
	s.rxBytes.Add(int64(bytes))
}

// Tx accounts one transmitted message of the given size.
// Tx 记录一条给定大小的发送消息。
func (s *Stat) Tx(bytes int) {
	s.txMessages.Add(1)
	s.txBytes.Add(int64(bytes))
}

// Time accounts one processing duration in nanoseconds.
// Time 记录一次处理耗时（纳秒）。
func (s *Stat) Time(ns int64) {
	s.timeCount.Add(1)
	s.timeSum.Add(ns)
	for {
		cur := s.timeMin.Load()
		if ns >= cur || s.timeMin.CompareAndSwap(cur, ns) {
			break
		}
	}
	for {
		cur := s.timeMax.Load()
		if ns <= cur || s.timeMax.CompareAndSwap(cur, ns) {
			break
		}
	}
}

// Read returns a snapshot without resetting the counters.
// Read 返回快照但不重置计数器。
func (s *Stat) Read() StatSnapshot {
	out := StatSnapshot{
		RxMessages: s.rxMessages.Load(),
		RxBytes:    s.rxBytes.Load(),
		TxMessages: s.txMessages.Load(),
		TxBytes:    s.txBytes.Load(),
		Time: TimeSnapshot{
			Count: s.timeCount.Load(),
			Sum:   s.timeSum.Load(),
			Min:   s.timeMin.Load(),
			Max:   s.timeMax.Load(),
		},
	}
	if out.Time.Count == 0 {
		out.Time.Min = 0
	}
	return out
}

// Swap atomically reads and zeroes the counters. Two consecutive calls on a
// quiescent channel return identical all-zero snapshots.
// Swap 原子地读取并清零计数器。静止通道上两次连续调用返回相同的全零快照。
func (s *Stat) Swap() StatSnapshot {
	out := StatSnapshot{
		RxMessages: s.rxMessages.Swap(0),
		RxBytes:    s.rxBytes.Swap(0),
		TxMessages: s.txMessages.Swap(0),
		TxBytes:    s.txBytes.Swap(0),
		Time: TimeSnapshot{
			Count: s.timeCount.Swap(0),
			Sum:   s.timeSum.Swap(0),
			Min:   s.timeMin.Swap(math.MaxInt64),
			Max:   s.timeMax.Swap(0),
		},
	}
	if out.Time.Count == 0 {
		out.Time.Min = 0
	}
	return out
}
