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

// Package config implements the hierarchical string key-value store backing
// every channel's configuration.
// 包 config 实现支撑每个通道配置的层级字符串键值存储。
//
// A tree is made of nodes; each node has an optional string value (or a live
// value getter) and an ordered map of named children. Lookups use dotted
// paths. Subtree views share nodes with their backing tree and observe live
// mutations. Protected subtrees (`info`, `url`, `init`, `open`) reject writes
// through the public API; the owning channel writes through an internal
// handle.
// 树由节点组成；每个节点有可选的字符串值（或实时取值函数）和有序的命名子节点。
// 查找使用点分路径。子树视图与其后备树共享节点并观察实时变更。受保护子树
// （`info`、`url`、`init`、`open`）拒绝通过公共 API 写入；所属通道通过内部
// 句柄写入。
//
// Every node carries a pointer to the lock guarding its tree. Mount grafts a
// foreign subtree and re-points the grafted nodes at the host's lock, so any
// node is always guarded by exactly one lock no matter how many handles can
// reach it.
// 每个节点携带指向保护其所在树的锁的指针。Mount 嫁接外部子树并将被嫁接节点
// 重新指向宿主的锁，因此无论多少句柄可以到达某个节点，它始终恰好由一把锁保护。
package config

import (
	"fmt"
	"strings"
	"sync"
)

type node struct {
	// mu guards the whole tree this node belongs to. Children share their
	// parent's lock; Mount re-points grafted subtrees at the host lock.
	// mu 保护此节点所属的整棵树。子节点共享父节点的锁；Mount 将被嫁接子树
	// 重新指向宿主锁。
	mu *sync.RWMutex

	value    string
	hasValue bool
	getter   func() string

	// protected rejects public Set and Unlink on this node and below.
	// protected 拒绝对此节点及以下的公共 Set 和 Unlink。
	protected bool

	keys     []string
	children map[string]*node
}

func (n *node) child(key string, create bool) *node {
	if n.children == nil {
		if !create {
			return nil
		}
		n.children = make(map[string]*node)
	}
	c, ok := n.children[key]
	if !ok {
		if !create {
			return nil
		}
		c = &node{mu: n.mu}
		n.children[key] = c
		n.keys = append(n.keys, key)
	}
	return c
}

// retarget points the subtree at a different lock. Only called from Mount,
// with the subtree's previous lock held.
func (n *node) retarget(mu *sync.RWMutex) {
	n.mu = mu
	for _, c := range n.children {
		c.retarget(mu)
	}
}

// Config is a handle over one node of a tree. Handles returned by Sub share
// nodes with the parent handle: mutations through one are observed through
// the other. The internal flag bypasses write protection and is only
// reachable through Internal.
// Config 是树上一个节点的句柄。Sub 返回的句柄与父句柄共享节点：
// 通过其一的变更可通过另一个观察到。internal 标志绕过写保护，
// 只能通过 Internal 获得。
type Config struct {
	n        *node
	internal bool
}

// New creates an empty tree and returns its root handle.
// New 创建空树并返回其根句柄。
func New() *Config {
	return &Config{n: &node{mu: &sync.RWMutex{}}}
}

// Internal returns a handle over the same node that bypasses write
// protection. Reserved for the owning channel.
// Internal 返回同一节点上绕过写保护的句柄。保留给所属通道使用。
func (c *Config) Internal() *Config {
	return &Config{n: c.n, internal: true}
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// lookup descends without creating. Returns the node and whether any node on
// the way (target included) is protected.
func (c *Config) lookup(path string) (*node, bool) {
	n := c.n
	protected := n.protected
	for _, key := range splitPath(path) {
		n = n.child(key, false)
		if n == nil {
			return nil, protected
		}
		protected = protected || n.protected
	}
	return n, protected
}

// Get returns the value at path, or def when the path is missing or carries
// no value. Live getters are evaluated on each call.
// Get 返回路径处的值，路径缺失或无值时返回 def。实时取值函数每次调用求值。
func (c *Config) Get(path, def string) string {
	c.n.mu.RLock()
	defer c.n.mu.RUnlock()
	n, _ := c.lookup(path)
	if n == nil {
		return def
	}
	if n.getter != nil {
		return n.getter()
	}
	if !n.hasValue {
		return def
	}
	return n.value
}

// Has reports whether path resolves to a node with a value.
// Has 报告路径是否解析到有值的节点。
func (c *Config) Has(path string) bool {
	c.n.mu.RLock()
	defer c.n.mu.RUnlock()
	n, _ := c.lookup(path)
	return n != nil && (n.hasValue || n.getter != nil)
}

// Set stores a value at path, creating intermediate nodes. Writing into a
// protected subtree fails unless the handle is internal.
// Set 在路径处存储值，创建中间节点。除非句柄是内部句柄，写入受保护子树会失败。
func (c *Config) Set(path, value string) error {
	if path == "" {
		return fmt.Errorf("config set: empty path")
	}
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	n := c.n
	protected := n.protected
	for _, key := range splitPath(path) {
		if protected && !c.internal {
			return fmt.Errorf("config set %q: subtree is write protected", path)
		}
		n = n.child(key, true)
		protected = protected || n.protected
	}
	if protected && !c.internal {
		return fmt.Errorf("config set %q: subtree is write protected", path)
	}
	n.value = value
	n.hasValue = true
	n.getter = nil
	return nil
}

// SetFunc binds a live value getter at path. Internal operation: the guard is
// not consulted.
// SetFunc 在路径处绑定实时取值函数。内部操作：不检查写保护。
func (c *Config) SetFunc(path string, getter func() string) {
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	n := c.n
	for _, key := range splitPath(path) {
		n = n.child(key, true)
	}
	n.getter = getter
	n.hasValue = false
}

// Protect marks the node at path (created when missing) as write protected
// for public handles.
// Protect 将路径处的节点（缺失时创建）标记为对公共句柄写保护。
func (c *Config) Protect(path string) {
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	n := c.n
	for _, key := range splitPath(path) {
		n = n.child(key, true)
	}
	n.protected = true
}

// Mount grafts the root node of another tree as the child at path. The
// subtree stays shared: mutations through the other tree are observed here.
// The grafted nodes adopt this tree's lock, so every node keeps exactly one
// guarding lock; mount before the other tree is visible to other goroutines.
// Mount 将另一棵树的根节点嫁接为路径处的子节点。子树保持共享：
// 通过另一棵树的变更在此可见。被嫁接节点采用本树的锁，因此每个节点始终
// 恰好由一把锁保护；请在另一棵树对其他 goroutine 可见之前进行嫁接。
func (c *Config) Mount(path string, other *Config) {
	keys := splitPath(path)
	if len(keys) == 0 {
		return
	}
	host := c.n.mu
	if old := other.n.mu; old != host {
		old.Lock()
		other.n.retarget(host)
		old.Unlock()
	}
	host.Lock()
	defer host.Unlock()
	n := c.n
	for _, key := range keys[:len(keys)-1] {
		n = n.child(key, true)
	}
	last := keys[len(keys)-1]
	if n.children == nil {
		n.children = make(map[string]*node)
	}
	if _, ok := n.children[last]; !ok {
		n.keys = append(n.keys, last)
	}
	n.children[last] = other.n
}

// Sub returns a view over the subtree at path, or nil when the path does not
// exist. The view observes live mutations of its backing nodes and inherits
// write protection.
// Sub 返回路径处子树的视图，路径不存在时返回 nil。视图观察其后备节点的实时
// 变更并继承写保护。
func (c *Config) Sub(path string) *Config {
	c.n.mu.RLock()
	defer c.n.mu.RUnlock()
	n, _ := c.lookup(path)
	if n == nil {
		return nil
	}
	return &Config{n: n, internal: c.internal}
}

// Unlink removes the node at path. Removing from a protected subtree or
// removing a protected node fails unless the handle is internal.
// Unlink 移除路径处的节点。除非句柄是内部句柄，从受保护子树移除或移除受保护
// 节点会失败。
func (c *Config) Unlink(path string) error {
	keys := splitPath(path)
	if len(keys) == 0 {
		return fmt.Errorf("config unlink: empty path")
	}
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	n := c.n
	protected := n.protected
	for _, key := range keys[:len(keys)-1] {
		n = n.child(key, false)
		if n == nil {
			return fmt.Errorf("config unlink %q: no such node", path)
		}
		protected = protected || n.protected
	}
	last := keys[len(keys)-1]
	target := n.child(last, false)
	if target == nil {
		return fmt.Errorf("config unlink %q: no such node", path)
	}
	if (protected || target.protected) && !c.internal {
		return fmt.Errorf("config unlink %q: subtree is write protected", path)
	}
	delete(n.children, last)
	for i, k := range n.keys {
		if k == last {
			n.keys = append(n.keys[:i], n.keys[i+1:]...)
			break
		}
	}
	return nil
}

// Clear removes all children of the node. Internal operation.
// Clear 移除节点的所有子节点。内部操作。
func (c *Config) Clear() {
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	c.n.children = nil
	c.n.keys = nil
}

// Keys returns the child keys in insertion order.
// Keys 按插入顺序返回子键。
func (c *Config) Keys() []string {
	c.n.mu.RLock()
	defer c.n.mu.RUnlock()
	return append([]string(nil), c.n.keys...)
}

// Value returns the node's own value, evaluating a live getter.
// Value 返回节点自身的值，实时取值函数会被求值。
func (c *Config) Value() string {
	c.n.mu.RLock()
	defer c.n.mu.RUnlock()
	if c.n.getter != nil {
		return c.n.getter()
	}
	return c.n.value
}

// AsDict renders the subtree as nested maps. Value nodes render as strings,
// nodes without a value render as (possibly empty) maps.
// AsDict 将子树渲染为嵌套映射。值节点渲染为字符串，无值节点渲染为
// （可能为空的）映射。
func (c *Config) AsDict() map[string]interface{} {
	c.n.mu.RLock()
	defer c.n.mu.RUnlock()
	out, _ := c.n.asDict().(map[string]interface{})
	if out == nil {
		out = map[string]interface{}{}
	}
	return out
}

func (n *node) asDict() interface{} {
	if len(n.keys) == 0 {
		if n.getter != nil {
			return n.getter()
		}
		if n.hasValue {
			return n.value
		}
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(n.keys))
	for _, k := range n.keys {
		out[k] = n.children[k].asDict()
	}
	return out
}

// Merge copies every value of the other tree into this one, honoring the
// write guard of the destination.
// Merge 将另一棵树的每个值复制到本树，遵守目标的写保护。
func (c *Config) Merge(other *Config) error {
	for _, item := range other.flatten() {
		if err := c.Set(item[0], item[1]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) flatten() [][2]string {
	c.n.mu.RLock()
	defer c.n.mu.RUnlock()
	var out [][2]string
	var walk func(prefix string, n *node)
	walk = func(prefix string, n *node) {
		if n.getter != nil {
			out = append(out, [2]string{prefix, n.getter()})
		} else if n.hasValue {
			out = append(out, [2]string{prefix, n.value})
		}
		for _, k := range n.keys {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			walk(p, n.children[k])
		}
	}
	walk("", c.n)
	return out
}
