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

// Package jsonc implements the scheme-driven JSON codec and the json+ prefix
// channel built on it.
// 包 jsonc 实现 scheme 驱动的 JSON 编解码器和基于它的 json+ 前缀通道。
package jsonc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bittoy/channel/scheme"
)

// Wire document keys naming the message and carrying the sequence number.
// The `_ce_` spellings are accepted on input as legacy aliases.
// 线上文档中命名消息和携带序列号的键。`_ce_` 拼写在输入侧作为遗留别名接受。
const (
	KeyName       = "_tll_name"
	KeySeq        = "_tll_seq"
	KeyNameLegacy = "_ce_name"
	KeySeqLegacy  = "_ce_seq"
)

// Field and message options steering the codec.
// 控制编解码器的字段和消息选项。
const (
	optEnumAsInt     = "json.enum-as-int"
	optMessageAsList = "json.message-as-list"
	optInlineMessage = "json.inline-message"
	optListSize      = "json.expected-list-size"
)

// Codec converts between native field maps and wire JSON documents, driven by
// a scheme. Native values are canonical: int64 for integer and uint kinds,
// float64 for double, string for strings, bytes and enum symbols (int64 for
// enums when json.enum-as-int is set), []interface{} for arrays and lists and
// map[string]interface{} for nested messages.
// Codec 在原生字段映射和线上 JSON 文档之间转换，由 scheme 驱动。原生值是
// 规范化的：整数用 int64，double 用 float64，字符串、字节和枚举符号用
// string（设置 json.enum-as-int 时枚举用 int64），数组和列表用
// []interface{}，嵌套消息用 map[string]interface{}。
type Codec struct {
	s *scheme.Scheme
}

// NewCodec creates a codec over a parsed scheme.
// NewCodec 在已解析的 scheme 上创建编解码器。
func NewCodec(s *scheme.Scheme) *Codec {
	return &Codec{s: s}
}

// Encode renders one message as a wire JSON document carrying the message
// name and, when withSeq is set, the sequence number.
// Encode 将一条消息渲染为线上 JSON 文档，携带消息名称以及（withSeq 时）序列号。
func (c *Codec) Encode(msg *scheme.Message, fields map[string]interface{}, seq int64, withSeq bool) ([]byte, error) {
	v, err := c.encodeMessage(msg, fields, true, seq, withSeq)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (c *Codec) encodeMessage(msg *scheme.Message, fields map[string]interface{}, top bool, seq int64, withSeq bool) (interface{}, error) {
	if msg.Options.Bool(optMessageAsList) {
		return c.encodeAsList(msg, fields)
	}
	obj := make(map[string]interface{}, len(msg.Fields)+2)
	if top {
		obj[KeyName] = msg.Name
		if withSeq {
			obj[KeySeq] = seq
		}
	}
	for _, f := range msg.Fields {
		v, ok := fields[f.Name]
		if !ok || v == nil {
			continue
		}
		if f.Options.Bool(optInlineMessage) && f.Type.Kind == scheme.KindMessage && !f.Type.Msg.Options.Bool(optMessageAsList) {
			sub, ok := v.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("field %s: inline message needs an object", f.Name)
			}
			enc, err := c.encodeMessage(f.Type.Msg, sub, false, 0, false)
			if err != nil {
				return nil, err
			}
			for k, ev := range enc.(map[string]interface{}) {
				obj[k] = ev
			}
			continue
		}
		ev, err := c.encodeValue(f.Type, f.Options, v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		obj[f.Name] = ev
	}
	return obj, nil
}

// encodeAsList renders a message tagged message-as-list as the ordered list
// of its field values; inline message fields splice their values in place.
func (c *Codec) encodeAsList(msg *scheme.Message, fields map[string]interface{}) (interface{}, error) {
	var arr []interface{}
	for _, f := range msg.Fields {
		v := fields[f.Name]
		if f.Options.Bool(optInlineMessage) && f.Type.Kind == scheme.KindMessage {
			sub, _ := v.(map[string]interface{})
			for _, sf := range f.Type.Msg.Fields {
				sv, ok := sub[sf.Name]
				if !ok || sv == nil {
					arr = append(arr, nil)
					continue
				}
				ev, err := c.encodeValue(sf.Type, sf.Options, sv)
				if err != nil {
					return nil, fmt.Errorf("field %s.%s: %w", f.Name, sf.Name, err)
				}
				arr = append(arr, ev)
			}
			continue
		}
		if v == nil {
			arr = append(arr, nil)
			continue
		}
		ev, err := c.encodeValue(f.Type, f.Options, v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		arr = append(arr, ev)
	}
	return arr, nil
}

func (c *Codec) encodeValue(t *scheme.Type, opts scheme.Options, v interface{}) (interface{}, error) {
	switch t.Kind {
	case scheme.KindInt8, scheme.KindInt16, scheme.KindInt32, scheme.KindInt64,
		scheme.KindUInt8, scheme.KindUInt16, scheme.KindUInt32:
		return asInt64(v)
	case scheme.KindDouble:
		return asFloat64(v)
	case scheme.KindBytes:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		if len(s) > t.Size {
			return nil, fmt.Errorf("string of %d bytes exceeds byte%d", len(s), t.Size)
		}
		return s, nil
	case scheme.KindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case scheme.KindEnum:
		return encodeEnum(t.Enum, opts, v)
	case scheme.KindArray:
		sl, err := asSlice(v)
		if err != nil {
			return nil, err
		}
		if len(sl) > t.Size {
			return nil, fmt.Errorf("list of %d entries exceeds array capacity %d", len(sl), t.Size)
		}
		return c.encodeSlice(t.Elem, opts, sl)
	case scheme.KindList:
		sl, err := asSlice(v)
		if err != nil {
			return nil, err
		}
		if max := opts.Int(optListSize, 0); max > 0 && len(sl) > max {
			return nil, fmt.Errorf("list of %d entries exceeds expected size %d", len(sl), max)
		}
		return c.encodeSlice(t.Elem, opts, sl)
	case scheme.KindMessage:
		sub, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected object, got %T", v)
		}
		return c.encodeMessage(t.Msg, sub, false, 0, false)
	}
	return nil, fmt.Errorf("unsupported kind %d", t.Kind)
}

func (c *Codec) encodeSlice(elem *scheme.Type, opts scheme.Options, sl []interface{}) ([]interface{}, error) {
	out := make([]interface{}, 0, len(sl))
	for i, v := range sl {
		ev, err := c.encodeValue(elem, opts, v)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func encodeEnum(e *scheme.Enum, opts scheme.Options, v interface{}) (interface{}, error) {
	asInt := opts.Bool(optEnumAsInt)
	switch val := v.(type) {
	case string:
		n, ok := e.Value(val)
		if !ok {
			return nil, fmt.Errorf("unknown %s value %q", e.Name, val)
		}
		if asInt {
			return n, nil
		}
		return val, nil
	default:
		n, err := asInt64(v)
		if err != nil {
			return nil, err
		}
		name, ok := e.ValueName(n)
		if !ok {
			return nil, fmt.Errorf("unknown %s value %d", e.Name, n)
		}
		if asInt {
			return n, nil
		}
		return name, nil
	}
}

// Decode parses a wire JSON document into the message it names and its
// canonical field map. Lists exceeding their expected size and arrays
// exceeding their capacity fail the decode.
// Decode 将线上 JSON 文档解析为其命名的消息和规范化字段映射。超过期望大小的
// 列表和超过容量的数组使解码失败。
func (c *Codec) Decode(data []byte) (*scheme.Message, int64, bool, map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, 0, false, nil, fmt.Errorf("parse: %w", err)
	}
	name, _ := obj[KeyName].(string)
	if name == "" {
		name, _ = obj[KeyNameLegacy].(string)
	}
	if name == "" {
		return nil, 0, false, nil, fmt.Errorf("document names no message")
	}
	msg := c.s.Message(name)
	if msg == nil {
		return nil, 0, false, nil, fmt.Errorf("unknown message %q", name)
	}
	var seq int64
	var hasSeq bool
	for _, key := range []string{KeySeq, KeySeqLegacy} {
		if raw, ok := obj[key]; ok {
			n, err := asInt64(raw)
			if err != nil {
				return nil, 0, false, nil, fmt.Errorf("bad sequence: %w", err)
			}
			seq, hasSeq = n, true
			break
		}
	}
	fields, err := c.decodeMessage(msg, obj)
	if err != nil {
		return nil, 0, false, nil, fmt.Errorf("message %s: %w", name, err)
	}
	return msg, seq, hasSeq, fields, nil
}

func (c *Codec) decodeMessage(msg *scheme.Message, obj map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(msg.Fields))
	for _, f := range msg.Fields {
		if f.Options.Bool(optInlineMessage) && f.Type.Kind == scheme.KindMessage && !f.Type.Msg.Options.Bool(optMessageAsList) {
			sub, err := c.decodeMessage(f.Type.Msg, obj)
			if err != nil {
				return nil, err
			}
			if len(sub) > 0 {
				out[f.Name] = sub
			}
			continue
		}
		v, ok := obj[f.Name]
		if !ok || v == nil {
			continue
		}
		dv, err := c.decodeValue(f.Type, f.Options, v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out[f.Name] = dv
	}
	return out, nil
}

// decodeAsList consumes a positional value list of a message-as-list message;
// inline message fields consume one position per nested field.
func (c *Codec) decodeAsList(msg *scheme.Message, arr []interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(msg.Fields))
	idx := 0
	for _, f := range msg.Fields {
		if f.Options.Bool(optInlineMessage) && f.Type.Kind == scheme.KindMessage {
			sub := make(map[string]interface{})
			for _, sf := range f.Type.Msg.Fields {
				if idx >= len(arr) {
					break
				}
				if arr[idx] != nil {
					dv, err := c.decodeValue(sf.Type, sf.Options, arr[idx])
					if err != nil {
						return nil, fmt.Errorf("field %s.%s: %w", f.Name, sf.Name, err)
					}
					sub[sf.Name] = dv
				}
				idx++
			}
			out[f.Name] = sub
			continue
		}
		if idx >= len(arr) {
			break
		}
		if arr[idx] != nil {
			dv, err := c.decodeValue(f.Type, f.Options, arr[idx])
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			out[f.Name] = dv
		}
		idx++
	}
	return out, nil
}

func (c *Codec) decodeValue(t *scheme.Type, opts scheme.Options, v interface{}) (interface{}, error) {
	switch t.Kind {
	case scheme.KindInt8, scheme.KindInt16, scheme.KindInt32, scheme.KindInt64,
		scheme.KindUInt8, scheme.KindUInt16, scheme.KindUInt32:
		return asInt64(v)
	case scheme.KindDouble:
		return asFloat64(v)
	case scheme.KindBytes:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		if len(s) > t.Size {
			return nil, fmt.Errorf("string of %d bytes exceeds byte%d", len(s), t.Size)
		}
		return s, nil
	case scheme.KindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case scheme.KindEnum:
		return decodeEnum(t.Enum, opts, v)
	case scheme.KindArray:
		sl, err := asSlice(v)
		if err != nil {
			return nil, err
		}
		if len(sl) > t.Size {
			return nil, fmt.Errorf("list of %d entries exceeds array capacity %d", len(sl), t.Size)
		}
		return c.decodeSlice(t.Elem, opts, sl)
	case scheme.KindList:
		sl, err := asSlice(v)
		if err != nil {
			return nil, err
		}
		if max := opts.Int(optListSize, 0); max > 0 && len(sl) > max {
			return nil, fmt.Errorf("list of %d entries exceeds expected size %d", len(sl), max)
		}
		return c.decodeSlice(t.Elem, opts, sl)
	case scheme.KindMessage:
		if t.Msg.Options.Bool(optMessageAsList) {
			arr, err := asSlice(v)
			if err != nil {
				return nil, err
			}
			return c.decodeAsList(t.Msg, arr)
		}
		sub, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected object, got %T", v)
		}
		return c.decodeMessage(t.Msg, sub)
	}
	return nil, fmt.Errorf("unsupported kind %d", t.Kind)
}

// decodeSlice resizes the target to exactly the received length.
func (c *Codec) decodeSlice(elem *scheme.Type, opts scheme.Options, sl []interface{}) ([]interface{}, error) {
	out := make([]interface{}, 0, len(sl))
	for i, v := range sl {
		dv, err := c.decodeValue(elem, opts, v)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, dv)
	}
	return out, nil
}

func decodeEnum(e *scheme.Enum, opts scheme.Options, v interface{}) (interface{}, error) {
	asInt := opts.Bool(optEnumAsInt)
	switch val := v.(type) {
	case string:
		n, ok := e.Value(val)
		if !ok {
			return nil, fmt.Errorf("unknown %s value %q", e.Name, val)
		}
		if asInt {
			return n, nil
		}
		return val, nil
	default:
		n, err := asInt64(v)
		if err != nil {
			return nil, err
		}
		name, ok := e.ValueName(n)
		if !ok {
			return nil, fmt.Errorf("unknown %s value %d", e.Name, n)
		}
		if asInt {
			return n, nil
		}
		return name, nil
	}
}

func asInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int64(n), nil
	}
	return 0, fmt.Errorf("not an integer: %T", v)
}

func asFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

func asSlice(v interface{}) ([]interface{}, error) {
	sl, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected list, got %T", v)
	}
	return sl, nil
}
