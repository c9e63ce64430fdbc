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
	"errors"
	"fmt"
	"strings"
)

// Reserved URL parameter keys.
// 保留的 URL 参数键。
const (
	KeyName      = "name"
	KeyDump      = "dump"
	KeyDir       = "dir"
	KeyBlock     = "block"
	KeyStat      = "stat"
	KeyMaster    = "master"
	KeyScheme    = "scheme"
	KeyAutoClose = "autoclose"
	// KeyChannelPrefix prefixes the logic role parameters:
	// `tll.channel.<role>=<name>[,<name>...]`.
	// KeyChannelPrefix 是逻辑角色参数的前缀。
	KeyChannelPrefix = "tll.channel."
)

// Url is the parsed representation of `scheme://host;k=v;k=v`. The scheme may
// be a `+`-separated chain of prefix tags followed by one leaf tag. Parameter
// order is preserved for String, lookups are by key.
// Url 是 `scheme://host;k=v;k=v` 的解析表示。scheme 可以是由 `+` 分隔的前缀标签链
// 后接一个叶子标签。参数顺序为 String 保留，查找按键进行。
type Url struct {
	// Proto is the full scheme, prefixes included, e.g. `prefix+echo`.
	// Proto 是完整 scheme，包含前缀，例如 `prefix+echo`。
	Proto string

	// Host is the part between `://` and the first `;`.
	// Host 是 `://` 与第一个 `;` 之间的部分。
	Host string

	keys   []string
	params map[string]string
}

// NewUrl creates an empty Url from a scheme and host.
// NewUrl 从 scheme 和 host 创建空 Url。
func NewUrl(proto, host string) *Url {
	return &Url{Proto: proto, Host: host, params: make(map[string]string)}
}

// ParseUrl parses a channel URL.
// ParseUrl 解析通道 URL。
func ParseUrl(s string) (*Url, error) {
	idx := strings.Index(s, "://")
	if idx < 0 {
		return nil, fmt.Errorf("invalid url %q: missing '://'", s)
	}
	u := &Url{
		Proto:  s[:idx],
		params: make(map[string]string),
	}
	if u.Proto == "" {
		return nil, fmt.Errorf("invalid url %q: empty scheme", s)
	}
	rest := s[idx+3:]
	if rest == "" {
		return u, nil
	}
	parts := strings.Split(rest, ";")
	u.Host = parts[0]
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid url %q: bad parameter %q", s, p)
		}
		u.SetParam(k, v)
	}
	return u, nil
}

// Chain splits the scheme into its prefix tags (each keeping the trailing `+`)
// and the final leaf tag. `prefix+echo` yields ["prefix+", "echo"].
// Chain 将 scheme 拆分为前缀标签（各自保留尾部 `+`）和最终叶子标签。
func (u *Url) Chain() []string {
	if !strings.Contains(u.Proto, "+") {
		return []string{u.Proto}
	}
	var out []string
	rest := u.Proto
	for {
		idx := strings.Index(rest, "+")
		if idx < 0 {
			out = append(out, rest)
			return out
		}
		out = append(out, rest[:idx+1])
		rest = rest[idx+1:]
		if rest == "" {
			// trailing '+': empty leaf, kept so construction can reject it
			out = append(out, "")
			return out
		}
	}
}

// GetParam retrieves a parameter with a default.
// GetParam 检索参数，缺失时返回默认值。
func (u *Url) GetParam(key, def string) string {
	if v, ok := u.params[key]; ok {
		return v
	}
	return def
}

// HasParam checks if a parameter is present.
// HasParam 检查参数是否存在。
func (u *Url) HasParam(key string) bool {
	_, ok := u.params[key]
	return ok
}

// SetParam sets a parameter, preserving first-insertion order.
// SetParam 设置参数，保持首次插入顺序。
func (u *Url) SetParam(key, value string) {
	if _, ok := u.params[key]; !ok {
		u.keys = append(u.keys, key)
	}
	u.params[key] = value
}

// Params returns the parameters as Props.
// Params 以 Props 形式返回参数。
func (u *Url) Params() Props {
	out := make(Props, len(u.params))
	for k, v := range u.params {
		out[k] = v
	}
	return out
}

// Keys returns the parameter keys in insertion order.
// Keys 按插入顺序返回参数键。
func (u *Url) Keys() []string {
	return append([]string(nil), u.keys...)
}

// Copy creates an independent Url.
// Copy 创建独立的 Url。
func (u *Url) Copy() *Url {
	out := &Url{
		Proto:  u.Proto,
		Host:   u.Host,
		keys:   append([]string(nil), u.keys...),
		params: make(map[string]string, len(u.params)),
	}
	for k, v := range u.params {
		out.params[k] = v
	}
	return out
}

// String reconstructs `proto://host;k=v;...` with parameters in insertion
// order.
// String 重建 `proto://host;k=v;...`，参数按插入顺序。
func (u *Url) String() string {
	var b strings.Builder
	b.WriteString(u.Proto)
	b.WriteString("://")
	b.WriteString(u.Host)
	for _, k := range u.keys {
		b.WriteString(";")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(u.params[k])
	}
	return b.String()
}

// ParseProps parses a `k=v;k=v` parameter string into Props.
// ParseProps 将 `k=v;k=v` 参数字符串解析为 Props。
func ParseProps(s string) (Props, error) {
	out := make(Props)
	if s == "" {
		return out, nil
	}
	for _, p := range strings.Split(s, ";") {
		if p == "" {
			continue
		}
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad parameter %q", p)
		}
		out[k] = v
	}
	return out, nil
}

// NormalizeParams merges Open arguments into one Props mapping. Each argument
// is either a `k=v;k=v` string or a Props / map[string]string value; later
// arguments override earlier ones. The result does not depend on parameter
// ordering inside the string form.
// NormalizeParams 将 Open 参数合并为一个 Props 映射。每个参数要么是 `k=v;k=v`
// 字符串要么是 Props / map[string]string 值；后面的参数覆盖前面的。
// 结果不依赖字符串形式内部的参数顺序。
func NormalizeParams(params ...interface{}) (Props, error) {
	out := make(Props)
	for _, p := range params {
		switch v := p.(type) {
		case nil:
		case string:
			sub, err := ParseProps(v)
			if err != nil {
				return nil, err
			}
			for k, val := range sub {
				out[k] = val
			}
		case Props:
			for k, val := range v {
				out[k] = val
			}
		case map[string]string:
			for k, val := range v {
				out[k] = val
			}
		default:
			return nil, errors.New("open parameters must be a string or a string mapping")
		}
	}
	return out, nil
}
