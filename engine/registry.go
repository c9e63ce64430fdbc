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

package engine

import (
	"fmt"
	"sync"

	"github.com/bittoy/channel/components/common"
	"github.com/bittoy/channel/components/file"
	"github.com/bittoy/channel/components/jsonc"
	"github.com/bittoy/channel/components/mqtt"
	"github.com/bittoy/channel/components/prefix"
	"github.com/bittoy/channel/types"
)

// Registry is the default registry of channel implementations. Every context
// starts with a copy of it.
// Registry 是通道实现的默认注册表。每个上下文以它的副本启动。
var Registry = new(ImplRegistry)

// init registers the built-in implementations collected by the component
// packages.
// init 注册由组件包收集的内置实现。
func init() {
	var impls []types.Impl
	impls = append(impls, common.Registry.Impls()...)
	impls = append(impls, file.Registry.Impls()...)
	impls = append(impls, jsonc.Registry.Impls()...)
	impls = append(impls, prefix.Registry.Impls()...)
	impls = append(impls, mqtt.Registry.Impls()...)

	for _, impl := range impls {
		_ = Registry.Register(impl)
	}
}

// ImplRegistry is a registry of channel implementation prototypes keyed by
// their URL scheme tag.
// ImplRegistry 是按 URL scheme 标签索引的通道实现原型注册表。
type ImplRegistry struct {
	impls map[string]types.Impl
	sync.RWMutex
}

// Register adds an implementation prototype to the registry.
// Register 向注册表添加实现原型。
func (r *ImplRegistry) Register(impl types.Impl) error {
	r.Lock()
	defer r.Unlock()
	if r.impls == nil {
		r.impls = make(map[string]types.Impl)
	}
	proto := impl.Proto()
	if proto == "" {
		return fmt.Errorf("implementation has an empty proto tag")
	}
	if _, ok := r.impls[proto]; ok {
		return fmt.Errorf("the implementation already exists. proto=%s", proto)
	}
	r.impls[proto] = impl
	return nil
}

// Unregister removes an implementation from the registry by its proto tag.
// Unregister 按 proto 标签从注册表移除实现。
func (r *ImplRegistry) Unregister(proto string) error {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.impls[proto]; !ok {
		return fmt.Errorf("implementation not found. proto=%s", proto)
	}
	delete(r.impls, proto)
	return nil
}

// Get retrieves an implementation prototype by proto tag.
// Get 按 proto 标签检索实现原型。
func (r *ImplRegistry) Get(proto string) (types.Impl, bool) {
	r.RLock()
	defer r.RUnlock()
	impl, ok := r.impls[proto]
	return impl, ok
}

// Impls returns a snapshot of all registered prototypes.
// Impls 返回所有已注册原型的快照。
func (r *ImplRegistry) Impls() map[string]types.Impl {
	r.RLock()
	defer r.RUnlock()
	out := make(map[string]types.Impl, len(r.impls))
	for k, v := range r.impls {
		out[k] = v
	}
	return out
}
