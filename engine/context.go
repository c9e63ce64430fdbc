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

// Package engine implements the channel runtime: the construction context
// with its factory registry and alias table, and the base channel carrying
// the lifecycle state machine, child ownership and callback fan-out.
// 包 engine 实现通道运行时：带工厂注册表和别名表的构建上下文，
// 以及承载生命周期状态机、子通道所有权和回调扇出的基础通道。
package engine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/bittoy/channel/scheme"
	"github.com/bittoy/channel/types"
)

// Ensuring Context implements the types.Context interface.
var _ types.Context = (*Context)(nil)

// maxAliasDepth bounds recursive alias expansion; deeper chains are cycles.
// maxAliasDepth 限制递归别名展开；更深的链视为循环。
const maxAliasDepth = 64

// Context is the registry-and-namespace root for a set of channels. It owns
// top-level channels by name until the caller destroys them. Register,
// Channel and Get are safe for concurrent use; the channels themselves are
// single-loop objects.
// Context 是一组通道的注册表和命名空间根。它按名称拥有顶层通道，直到调用者
// 销毁它们。Register、Channel 和 Get 并发安全；通道本身是单循环对象。
type Context struct {
	cfg types.Config

	mu       sync.Mutex
	registry *ImplRegistry
	aliases  map[string]*types.Url
	channels map[string]types.Channel
	stats    []*types.Stat

	schemeMu sync.Mutex
	schemes  map[string]*scheme.Scheme
}

// NewContext creates a context preloaded with the built-in implementations.
// NewContext 创建预装内置实现的上下文。
func NewContext(cfgs ...types.Config) *Context {
	cfg := types.NewConfig()
	if len(cfgs) > 0 {
		cfg = cfgs[0]
	}
	if cfg.Logger == nil {
		cfg.Logger = types.DefaultLogger()
	}
	ctx := &Context{
		cfg:      cfg,
		registry: new(ImplRegistry),
		aliases:  make(map[string]*types.Url),
		channels: make(map[string]types.Channel),
		schemes:  make(map[string]*scheme.Scheme),
	}
	for _, impl := range Registry.Impls() {
		_ = ctx.registry.Register(impl)
	}
	return ctx
}

// Config returns the runtime configuration.
// Config 返回运行时配置。
func (ctx *Context) Config() types.Config {
	return ctx.cfg
}

// Register adds an implementation prototype to this context.
// Register 向此上下文添加实现原型。
func (ctx *Context) Register(impl types.Impl) error {
	return ctx.registry.Register(impl)
}

// Unregister removes an implementation; subsequent constructions of its tag
// fail.
// Unregister 移除实现；之后对其标签的构建会失败。
func (ctx *Context) Unregister(impl types.Impl) error {
	return ctx.registry.Unregister(impl.Proto())
}

// Alias adds a URL template under a name. Prefix aliases keep their trailing
// `+` (`aprefix+`). A duplicate name fails.
// Alias 以名称添加 URL 模板。前缀别名保留尾部 `+`（如 `aprefix+`）。
// 重复名称会失败。
func (ctx *Context) Alias(name, template string) error {
	u, err := types.ParseUrl(template)
	if err != nil {
		return types.ConstructionError("", "alias %s: %v", name, err)
	}
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if _, ok := ctx.aliases[name]; ok {
		return types.ConstructionError("", "alias %s already exists", name)
	}
	ctx.aliases[name] = u
	return nil
}

// expand resolves the leading scheme token against the alias table until no
// alias matches; the registry is not consulted. Inner tokens left by
// prefix aliases are resolved later, when the wrapped channel constructs its
// inner chain. Template parameters are merged in, existing keys win.
// expand 针对别名表解析首个 scheme 标记，直到没有别名匹配；不查询注册表。
// 前缀别名留下的内部标记稍后在被包装通道构建其内部链时解析。
// 模板参数被合并，已存在的键优先。
func (ctx *Context) expand(u *types.Url) (*types.Url, error) {
	out := u.Copy()
	for depth := 0; ; depth++ {
		if depth > maxAliasDepth {
			return nil, fmt.Errorf("alias expansion of %q does not converge", u.Proto)
		}
		tokens := out.Chain()
		ctx.mu.Lock()
		tpl, ok := ctx.aliases[tokens[0]]
		ctx.mu.Unlock()
		if !ok {
			return out, nil
		}
		rest := strings.Join(tokens[1:], "")
		out.Proto = tpl.Proto + rest
		if out.Host == "" {
			out.Host = tpl.Host
		}
		for _, k := range tpl.Keys() {
			if !out.HasParam(k) {
				out.SetParam(k, tpl.GetParam(k, ""))
			}
		}
	}
}

// Channel constructs a channel from a URL: parse, expand aliases, build the
// first scheme token (a prefix constructs its inner chain itself), attach
// scheme, stat block and dump tracing, and register the result by name.
// Construction failures leave no partial channel behind.
// Channel 从 URL 构建通道：解析、展开别名、构建第一个 scheme 标记（前缀自行
// 构建其内部链）、附加 scheme、统计块和转储跟踪，并按名称注册结果。
// 构建失败不会留下部分构建的通道。
func (ctx *Context) Channel(url string, overrides ...types.Props) (types.Channel, error) {
	u, err := types.ParseUrl(url)
	if err != nil {
		return nil, types.ConstructionError("", "%v", err)
	}
	for _, o := range overrides {
		for k, v := range o {
			u.SetParam(k, v)
		}
	}
	resolved, err := ctx.expand(u)
	if err != nil {
		return nil, types.ConstructionError("", "%v", err)
	}
	tokens := resolved.Chain()
	if tokens[len(tokens)-1] == "" {
		return nil, types.ConstructionError("", "url %q: prefix scheme requires a leaf channel", resolved.Proto)
	}

	name := resolved.GetParam(types.KeyName, "")
	if name == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return nil, types.ConstructionError("", "generate name: %v", err)
		}
		name = tokens[len(tokens)-1] + "-" + id.String()
		resolved.SetParam(types.KeyName, name)
	}

	proto := tokens[0]
	impl, ok := ctx.registry.Get(proto)
	if !ok {
		return nil, types.ConstructionError(name, "unknown channel proto %q", proto)
	}

	var master types.Channel
	if m := resolved.GetParam(types.KeyMaster, ""); m != "" {
		if master = ctx.Get(m); master == nil {
			return nil, types.ConstructionError(name, "master channel %q not found", m)
		}
	}

	c := newChannel(ctx, impl.New(), name, resolved)
	c.master = master

	if s := resolved.GetParam(types.KeyScheme, ""); s != "" {
		sch, err := ctx.SchemeLoad(s)
		if err != nil {
			return nil, types.ConstructionError(name, "scheme: %v", err)
		}
		c.scheme = sch
	}

	switch resolved.GetParam(types.KeyStat, "") {
	case "yes", "true", "1":
		c.stat = types.NewStat(name)
	}

	ctx.mu.Lock()
	if _, ok := ctx.channels[name]; ok {
		ctx.mu.Unlock()
		return nil, types.ConstructionError(name, "duplicate channel name")
	}
	ctx.channels[name] = c
	if c.stat != nil {
		ctx.stats = append(ctx.stats, c.stat)
	}
	ctx.mu.Unlock()

	// prototype defaults first, so Init may already manage children;
	// re-read below since implementations adapt the policy to parameters
	c.policy = c.impl.Policy()
	if err := c.impl.Init(c, resolved, master); err != nil {
		for _, child := range c.childSnapshot() {
			_ = c.ChildDel(child)
			if !c.orphan(child) {
				child.Destroy()
			}
		}
		ctx.remove(c)
		if _, ok := err.(*types.ChannelError); ok {
			return nil, err
		}
		return nil, types.ConstructionError(name, "%v", err)
	}
	c.policy = c.impl.Policy()
	return c, nil
}

// Get returns a channel by name, or nil.
// Get 按名称返回通道，可能为 nil。
func (ctx *Context) Get(name string) types.Channel {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if c, ok := ctx.channels[name]; ok {
		return c
	}
	return nil
}

// remove drops a destroyed channel and its stat block from the context.
func (ctx *Context) remove(c *channel) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if have, ok := ctx.channels[c.name]; ok && have == types.Channel(c) {
		delete(ctx.channels, c.name)
	}
	if c.stat != nil {
		for i, s := range ctx.stats {
			if s == c.stat {
				ctx.stats = append(ctx.stats[:i], ctx.stats[i+1:]...)
				break
			}
		}
	}
}

// SchemeLoad parses a scheme source URL, caching parsed schemes by source.
// SchemeLoad 解析 scheme 源 URL，并按源缓存已解析的 scheme。
func (ctx *Context) SchemeLoad(url string) (*scheme.Scheme, error) {
	ctx.schemeMu.Lock()
	defer ctx.schemeMu.Unlock()
	if s, ok := ctx.schemes[url]; ok {
		return s, nil
	}
	s, err := scheme.Load(url)
	if err != nil {
		return nil, err
	}
	ctx.schemes[url] = s
	return s, nil
}

// StatList returns the stat blocks of channels constructed with stat=yes, in
// construction order.
// StatList 按构建顺序返回以 stat=yes 构建的通道的统计块。
func (ctx *Context) StatList() []*types.Stat {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return append([]*types.Stat(nil), ctx.stats...)
}

// ChannelCast returns the typed implementation behind a channel handle. It
// fails when the underlying implementation is of a different type.
// ChannelCast 返回通道句柄背后的类型化实现。底层实现类型不同时失败。
func ChannelCast[T types.Impl](c types.Channel) (T, error) {
	impl, ok := c.Impl().(T)
	if !ok {
		var zero T
		return zero, types.ArgumentError(c.Name(), "implementation is %T, not %T", c.Impl(), zero)
	}
	return impl, nil
}
