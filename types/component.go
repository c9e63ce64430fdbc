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

package types

import (
	"sync"
)

// DescGetter is an optional interface that implementations can provide to
// describe themselves.
// DescGetter 是实现可以提供的可选接口，用于自我描述。
type DescGetter interface {
	// Desc returns a description of the implementation.
	// Desc 返回实现的描述。
	Desc() string
}

// SafeImplSlice provides a thread-safe slice for collecting channel
// implementations. Component packages keep a package-level instance that
// implementations join from their init functions; the engine merges the
// collected prototypes into the default registry.
// SafeImplSlice 提供用于收集通道实现的线程安全切片。组件包保有一个包级实例，
// 实现从其 init 函数加入；引擎将收集到的原型合并到默认注册表。
type SafeImplSlice struct {
	impls []Impl
	sync.Mutex
}

// Add safely appends one or more implementations to the slice.
// Add 安全地将一个或多个实现追加到切片中。
func (p *SafeImplSlice) Add(impls ...Impl) {
	p.Lock()
	defer p.Unlock()
	p.impls = append(p.impls, impls...)
}

// Impls returns a snapshot of the collected implementations.
// Impls 返回已收集实现的快照。
func (p *SafeImplSlice) Impls() []Impl {
	p.Lock()
	defer p.Unlock()
	return append([]Impl(nil), p.impls...)
}
