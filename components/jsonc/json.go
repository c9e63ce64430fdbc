package jsonc

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/bittoy/channel/components/prefix"
	"github.com/bittoy/channel/scheme"
	"github.com/bittoy/channel/types"
)

// Registry collects the implementations of this package for the engine's
// default registry.
var Registry = &types.SafeImplSlice{}

func init() {
	Registry.Add(&Json{})
}

// Json json+ 前缀通道：在原生形式和线上 JSON 文档之间转换消息。
// Json is the json+ prefix channel converting between the native form
// (MsgID and Seq set, Data carrying the canonical field object) and the wire
// form (a JSON document naming the message with _tll_name). Posted documents
// may name the message themselves or rely on MsgID. Inbound documents that
// fail the scheme are dropped and counted under `info.rx-errors`, they are
// never fatal.
//
//	out, _ := ctx.Channel("json+direct://;name=out;scheme=yamls://...")
type Json struct {
	prefix.Prefix

	codec    *Codec
	rxErrors int64
}

// Proto returns the URL scheme tag.
func (x *Json) Proto() string {
	return "json+"
}

// New creates a new instance.
func (x *Json) New() types.Impl {
	return &Json{}
}

// Init requires an attached scheme and constructs the inner channel.
func (x *Json) Init(base types.BaseChannel, url *types.Url, master types.Channel) error {
	if base.Scheme() == nil {
		return types.ConstructionError(base.Name(), "json+ requires a scheme")
	}
	x.codec = NewCodec(base.Scheme())
	return x.InitPrefix(x, base, url, master)
}

// ConvertOutput encodes a posted native message into the wire document
// forwarded to the inner channel.
func (x *Json) ConvertOutput(msg *types.Message) (*types.Message, error) {
	if msg.Type != types.MsgData {
		return msg, nil
	}
	var obj map[string]interface{}
	if len(msg.Data) > 0 {
		dec := json.NewDecoder(bytes.NewReader(msg.Data))
		dec.UseNumber()
		if err := dec.Decode(&obj); err != nil {
			return nil, types.ArgumentError(x.Base().Name(), "post body: %v", err)
		}
	} else {
		obj = map[string]interface{}{}
	}

	s := x.Base().Scheme()
	var m *scheme.Message
	name, _ := obj[KeyName].(string)
	if name == "" {
		name, _ = obj[KeyNameLegacy].(string)
	}
	seq := msg.Seq
	if name != "" {
		if m = s.Message(name); m == nil {
			return nil, types.ArgumentError(x.Base().Name(), "unknown message %q", name)
		}
		if raw, ok := obj[KeySeq]; ok && seq == 0 {
			if n, err := asInt64(raw); err == nil {
				seq = n
			}
		}
		delete(obj, KeyName)
		delete(obj, KeyNameLegacy)
		delete(obj, KeySeq)
		delete(obj, KeySeqLegacy)
	} else if msg.MsgID != 0 {
		if m = s.MessageByID(msg.MsgID); m == nil {
			return nil, types.ArgumentError(x.Base().Name(), "unknown msgid %d", msg.MsgID)
		}
	} else {
		return nil, types.ArgumentError(x.Base().Name(), "post names no message")
	}

	wire, err := x.codec.Encode(m, obj, seq, true)
	if err != nil {
		return nil, types.ArgumentError(x.Base().Name(), "encode %s: %v", m.Name, err)
	}
	out := *msg
	out.MsgID = m.MsgID
	out.Seq = seq
	out.Data = wire
	return &out, nil
}

// ConvertInput decodes a wire document arriving from the inner channel.
// Documents that fail the scheme are dropped and counted, not fatal.
func (x *Json) ConvertInput(msg *types.Message) (*types.Message, error) {
	if msg.Type != types.MsgData {
		return msg, nil
	}
	m, seq, hasSeq, fields, err := x.codec.Decode(msg.Data)
	if err != nil {
		x.rxErrors++
		x.Base().ConfigSet("info.rx-errors", strconv.FormatInt(x.rxErrors, 10))
		return nil, types.ProtocolError(x.Base().Name(), "%v", err)
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, types.ProtocolError(x.Base().Name(), "render: %v", err)
	}
	out := *msg
	out.MsgID = m.MsgID
	if hasSeq {
		out.Seq = seq
	}
	out.Data = data
	return &out, nil
}
