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

// Package scheme parses message layout descriptions used by transports and
// codecs.
// 包 scheme 解析传输和编解码器使用的消息布局描述。
//
// A scheme source is a YAML list of message definitions:
// scheme 源是消息定义的 YAML 列表：
//
//	- name: msg
//	  id: 10
//	  fields:
//	    - {name: f0, type: int32}
//	    - {name: f1, type: '*string'}
//	  options.json.message-as-list: no
//
// Supported field types: int8/16/32/64, uint8/16/32, double, byte<N>,
// string, fixed arrays `T[N]`, variable lists `*T` (nesting allowed),
// per-message enums and nested message names. Options appear either nested
// under `options` or flattened with dotted keys; both forms normalize to the
// same dotted lookup.
// 支持的字段类型：int8/16/32/64、uint8/16/32、double、byte<N>、string、
// 定长数组 `T[N]`、可变列表 `*T`（允许嵌套）、每消息枚举和嵌套消息名。
// 选项既可嵌套在 `options` 下也可用点分键平铺；两种形式规范化为相同的点分查找。
//
// A parsed Scheme is immutable: concurrent readers need no synchronization.
// 解析后的 Scheme 不可变：并发读者无需同步。
package scheme

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind enumerates field type kinds.
// Kind 枚举字段类型种类。
type Kind int

const (
	KindInt8 Kind = iota
	KindInt16
	KindInt32
	KindInt64
	KindUInt8
	KindUInt16
	KindUInt32
	KindDouble
	KindBytes
	KindString
	KindArray
	KindList
	KindMessage
	KindEnum
)

// Type describes one field type. Array and List carry Elem; Bytes and Array
// carry Size; Message and Enum carry their definitions.
// Type 描述一个字段类型。Array 和 List 携带 Elem；Bytes 和 Array 携带 Size；
// Message 和 Enum 携带其定义。
type Type struct {
	Kind Kind
	// Size is the byte width for KindBytes and the capacity for KindArray.
	// Size 是 KindBytes 的字节宽度和 KindArray 的容量。
	Size int
	Elem *Type
	Msg  *Message
	Enum *Enum
}

// Field is one named field of a message.
// Field 是消息的一个命名字段。
type Field struct {
	Name    string
	Type    *Type
	Options Options
}

// EnumValue is one symbolic enum constant.
// EnumValue 是一个符号枚举常量。
type EnumValue struct {
	Name  string
	Value int64
}

// Enum is a per-message enumeration.
// Enum 是每消息的枚举。
type Enum struct {
	Name   string
	Kind   Kind
	Values []EnumValue

	byName  map[string]int64
	byValue map[int64]string
}

// Value resolves a symbolic name.
// Value 解析符号名称。
func (e *Enum) Value(name string) (int64, bool) {
	v, ok := e.byName[name]
	return v, ok
}

// ValueName resolves a numeric value to its symbolic name.
// ValueName 将数值解析为其符号名称。
func (e *Enum) ValueName(v int64) (string, bool) {
	n, ok := e.byValue[v]
	return n, ok
}

// Message is one message layout: a name, an optional id and an ordered field
// list.
// Message 是一个消息布局：名称、可选 id 和有序字段列表。
type Message struct {
	Name    string
	MsgID   int32
	Fields  []*Field
	Enums   map[string]*Enum
	Options Options

	fields map[string]*Field
}

// Field looks up a field by name.
// Field 按名称查找字段。
func (m *Message) Field(name string) *Field {
	return m.fields[name]
}

// Scheme is an immutable parsed scheme.
// Scheme 是不可变的已解析 scheme。
type Scheme struct {
	Messages []*Message

	byName map[string]*Message
	byID   map[int32]*Message
}

// Message looks up a message by name.
// Message 按名称查找消息。
func (s *Scheme) Message(name string) *Message {
	return s.byName[name]
}

// MessageByID looks up a message by id. Messages without an id are not
// reachable this way.
// MessageByID 按 id 查找消息。没有 id 的消息无法这样找到。
func (s *Scheme) MessageByID(id int32) *Message {
	return s.byID[id]
}

// Load parses a scheme source URL: `yamls://<literal yaml>` or
// `yaml://<path>`.
// Load 解析 scheme 源 URL：`yamls://<字面 yaml>` 或 `yaml://<路径>`。
func Load(url string) (*Scheme, error) {
	switch {
	case strings.HasPrefix(url, "yamls://"):
		return Parse([]byte(url[len("yamls://"):]))
	case strings.HasPrefix(url, "yaml://"):
		body, err := os.ReadFile(url[len("yaml://"):])
		if err != nil {
			return nil, fmt.Errorf("scheme load: %w", err)
		}
		return Parse(body)
	}
	return nil, fmt.Errorf("scheme load: unknown source %q", url)
}

// Parse parses a YAML scheme body.
// Parse 解析 YAML scheme 正文。
func Parse(body []byte) (*Scheme, error) {
	var raw []map[string]interface{}
	if err := yaml.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("scheme parse: %w", err)
	}
	s := &Scheme{
		byName: make(map[string]*Message),
		byID:   make(map[int32]*Message),
	}
	for _, def := range raw {
		m, err := parseMessage(s, def)
		if err != nil {
			return nil, err
		}
		if _, ok := s.byName[m.Name]; ok {
			return nil, fmt.Errorf("scheme parse: duplicate message %q", m.Name)
		}
		s.Messages = append(s.Messages, m)
		s.byName[m.Name] = m
		if m.MsgID != 0 {
			s.byID[m.MsgID] = m
		}
	}
	return s, nil
}

func parseMessage(s *Scheme, def map[string]interface{}) (*Message, error) {
	m := &Message{
		Enums:   make(map[string]*Enum),
		Options: make(Options),
		fields:  make(map[string]*Field),
	}
	name, _ := def["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("scheme parse: message without name")
	}
	m.Name = name
	if id, ok := def["id"]; ok {
		n, err := toInt64(id)
		if err != nil {
			return nil, fmt.Errorf("scheme parse: message %q: bad id: %w", name, err)
		}
		m.MsgID = int32(n)
	}
	collectOptions(def, m.Options)

	if enums, ok := def["enums"].(map[string]interface{}); ok {
		for ename, edef := range enums {
			e, err := parseEnum(ename, edef)
			if err != nil {
				return nil, fmt.Errorf("scheme parse: message %q: %w", name, err)
			}
			m.Enums[ename] = e
		}
	}

	fields, _ := def["fields"].([]interface{})
	for _, f := range fields {
		fdef, ok := f.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("scheme parse: message %q: bad field entry", name)
		}
		field, err := parseField(s, m, fdef)
		if err != nil {
			return nil, fmt.Errorf("scheme parse: message %q: %w", name, err)
		}
		if _, ok := m.fields[field.Name]; ok {
			return nil, fmt.Errorf("scheme parse: message %q: duplicate field %q", name, field.Name)
		}
		m.Fields = append(m.Fields, field)
		m.fields[field.Name] = field
	}
	return m, nil
}

func parseEnum(name string, def interface{}) (*Enum, error) {
	m, ok := def.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("enum %q: bad definition", name)
	}
	typ, _ := m["type"].(string)
	kind, ok := scalarKind(typ)
	if !ok {
		return nil, fmt.Errorf("enum %q: bad base type %q", name, typ)
	}
	values, ok := m["enum"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("enum %q: missing values", name)
	}
	e := &Enum{
		Name:    name,
		Kind:    kind,
		byName:  make(map[string]int64),
		byValue: make(map[int64]string),
	}
	for vname, v := range values {
		n, err := toInt64(v)
		if err != nil {
			return nil, fmt.Errorf("enum %q: value %q: %w", name, vname, err)
		}
		e.Values = append(e.Values, EnumValue{Name: vname, Value: n})
		e.byName[vname] = n
		if _, ok := e.byValue[n]; !ok {
			e.byValue[n] = vname
		}
	}
	sort.Slice(e.Values, func(i, j int) bool { return e.Values[i].Value < e.Values[j].Value })
	return e, nil
}

func parseField(s *Scheme, m *Message, def map[string]interface{}) (*Field, error) {
	name, _ := def["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("field without name")
	}
	tname, _ := def["type"].(string)
	if tname == "" {
		return nil, fmt.Errorf("field %q: missing type", name)
	}
	typ, err := parseType(s, m, tname)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", name, err)
	}
	f := &Field{Name: name, Type: typ, Options: make(Options)}
	collectOptions(def, f.Options)
	return f, nil
}

func scalarKind(name string) (Kind, bool) {
	switch name {
	case "int8":
		return KindInt8, true
	case "int16":
		return KindInt16, true
	case "int32":
		return KindInt32, true
	case "int64":
		return KindInt64, true
	case "uint8":
		return KindUInt8, true
	case "uint16":
		return KindUInt16, true
	case "uint32":
		return KindUInt32, true
	case "double":
		return KindDouble, true
	}
	return 0, false
}

func parseType(s *Scheme, m *Message, name string) (*Type, error) {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "*") {
		elem, err := parseType(s, m, name[1:])
		if err != nil {
			return nil, err
		}
		return &Type{Kind: KindList, Elem: elem}, nil
	}
	if idx := strings.IndexByte(name, '['); idx > 0 && strings.HasSuffix(name, "]") {
		size, err := strconv.Atoi(name[idx+1 : len(name)-1])
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("bad array size in %q", name)
		}
		elem, err := parseType(s, m, name[:idx])
		if err != nil {
			return nil, err
		}
		return &Type{Kind: KindArray, Size: size, Elem: elem}, nil
	}
	if kind, ok := scalarKind(name); ok {
		return &Type{Kind: kind}, nil
	}
	if name == "string" {
		return &Type{Kind: KindString}, nil
	}
	if strings.HasPrefix(name, "byte") {
		if size, err := strconv.Atoi(name[len("byte"):]); err == nil && size > 0 {
			return &Type{Kind: KindBytes, Size: size}, nil
		}
	}
	if e, ok := m.Enums[name]; ok {
		return &Type{Kind: KindEnum, Enum: e}, nil
	}
	if sub, ok := s.byName[name]; ok {
		return &Type{Kind: KindMessage, Msg: sub}, nil
	}
	return nil, fmt.Errorf("unknown type %q", name)
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("not an integer: %v", v)
}
