package prefix

import (
	"github.com/bittoy/channel/types"
	"github.com/bittoy/channel/utils/js"
	"github.com/bittoy/channel/utils/maps"
)

// JsFilterConfiguration JsFilter配置结构
// JsFilterConfiguration configures the jsfilter+ prefix.
type JsFilterConfiguration struct {
	// Code JavaScript脚本，必须定义 filter(msg) 函数并返回布尔值
	// Code is a JavaScript source defining `function filter(msg)` returning
	// a boolean. The msg argument carries msgid, seq, addr, size and type.
	//
	// 示例: "function filter(msg) { return msg.seq % 2 == 0; }"
	Code string `map:"code"`
}

// JsFilter 使用goja运行JavaScript谓词过滤内部通道消息的前缀通道
// JsFilter is a prefix channel filtering inbound messages of its inner
// channel with a JavaScript predicate executed by goja.
type JsFilter struct {
	Prefix

	// Config 节点配置
	Config JsFilterConfiguration

	jsEngine *js.GojaJsEngine
}

// Proto returns the URL scheme tag.
func (x *JsFilter) Proto() string {
	return "jsfilter+"
}

// New creates a new instance.
func (x *JsFilter) New() types.Impl {
	return &JsFilter{}
}

// Init compiles the script and constructs the inner channel.
func (x *JsFilter) Init(base types.BaseChannel, url *types.Url, master types.Channel) error {
	if err := maps.Map2Struct(url.Params(), &x.Config); err != nil {
		return err
	}
	if x.Config.Code == "" {
		return types.ConstructionError(base.Name(), "jsfilter+ requires a `code` parameter")
	}
	jsEngine, err := js.NewGojaJsEngine(x.Config.Code, nil)
	if err != nil {
		return types.ConstructionError(base.Name(), "js compile: %v", err)
	}
	x.jsEngine = jsEngine
	return x.InitPrefix(x, base, url, master)
}

// ConvertInput drops messages failing the predicate.
func (x *JsFilter) ConvertInput(msg *types.Message) (*types.Message, error) {
	out, err := x.jsEngine.Execute("filter", map[string]interface{}{
		"msgid": msg.MsgID,
		"seq":   msg.Seq,
		"addr":  msg.Addr,
		"size":  len(msg.Data),
		"type":  msg.Type.String(),
	})
	if err != nil {
		return nil, types.ProtocolError(x.Base().Name(), "js filter: %v", err)
	}
	if pass, ok := out.(bool); ok && pass {
		return msg, nil
	}
	return nil, nil
}

// Destroy stops the script engine.
func (x *JsFilter) Destroy() {
	if x.jsEngine != nil {
		x.jsEngine.Stop()
	}
}
