package prefix

import (
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/bittoy/channel/types"
	"github.com/bittoy/channel/utils/maps"
)

// ExprFilterConfiguration ExprFilter配置结构
// ExprFilterConfiguration configures the exprfilter+ prefix.
type ExprFilterConfiguration struct {
	// Expr 用于过滤评估的表达式，必须返回布尔值
	// Expr contains the expression evaluated per inbound message.
	// The expression has access to the following variables:
	//   - msgid: Message id (int)
	//   - seq: Message sequence number (int)
	//   - addr: Peer address (int)
	//   - size: Payload size in bytes (int)
	//   - type: Message type name (string)
	//
	// The expression must evaluate to a boolean value: true passes the
	// message upward, false drops it.
	//
	// 表达式示例：
	//   - "seq > 100"
	//   - "msgid == 10 && size > 0"
	Expr string `map:"expr"`
}

// ExprFilter 使用expr-lang表达式对内部通道的消息进行布尔评估过滤的前缀通道
// ExprFilter is a prefix channel filtering inbound messages of its inner
// channel with an expr-lang boolean expression. Posts pass through unchanged.
type ExprFilter struct {
	Prefix

	// Config 节点配置
	Config ExprFilterConfiguration

	// program 用于高效评估的编译表达式
	// program is the compiled expression for efficient evaluation
	program *vm.Program
}

// Proto returns the URL scheme tag.
func (x *ExprFilter) Proto() string {
	return "exprfilter+"
}

// New creates a new instance.
func (x *ExprFilter) New() types.Impl {
	return &ExprFilter{}
}

// Init compiles the expression and constructs the inner channel.
func (x *ExprFilter) Init(base types.BaseChannel, url *types.Url, master types.Channel) error {
	if err := maps.Map2Struct(url.Params(), &x.Config); err != nil {
		return err
	}
	if x.Config.Expr == "" {
		return types.ConstructionError(base.Name(), "exprfilter+ requires an `expr` parameter")
	}
	program, err := expr.Compile(x.Config.Expr, expr.AllowUndefinedVariables(), expr.AsKind(reflect.Bool))
	if err != nil {
		return types.ConstructionError(base.Name(), "expr compile: %v", err)
	}
	x.program = program
	return x.InitPrefix(x, base, url, master)
}

// ConvertInput drops messages failing the predicate.
func (x *ExprFilter) ConvertInput(msg *types.Message) (*types.Message, error) {
	env := map[string]interface{}{
		"msgid": int(msg.MsgID),
		"seq":   int(msg.Seq),
		"addr":  int(msg.Addr),
		"size":  len(msg.Data),
		"type":  msg.Type.String(),
	}
	out, err := vm.Run(x.program, env)
	if err != nil {
		return nil, types.ProtocolError(x.Base().Name(), "expr: %v", err)
	}
	if pass, ok := out.(bool); ok && pass {
		return msg, nil
	}
	return nil, nil
}
