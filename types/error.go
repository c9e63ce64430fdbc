package types

import (
	"fmt"
)

// ErrorKind is the error taxonomy of the framework.
// ErrorKind 是框架的错误分类。
type ErrorKind int

const (
	// KindConstruction: unknown tag, malformed URL, duplicate name, missing
	// master. No channel is registered.
	// KindConstruction：未知标签、URL 格式错误、名称重复、master 缺失。
	// 不会注册任何通道。
	KindConstruction ErrorKind = iota
	// KindArgument: bad parameters to Open or Post.
	// KindArgument：Open 或 Post 的参数错误。
	KindArgument
	// KindTransport: I/O failure, capacity exceeded, frame corruption.
	// KindTransport：I/O 故障、容量超限、帧损坏。
	KindTransport
	// KindProtocol: message does not match the scheme, decode failure.
	// KindProtocol：消息与 scheme 不匹配、解码失败。
	KindProtocol
)

func (k ErrorKind) String() string {
	switch k {
	case KindConstruction:
		return "construction"
	case KindArgument:
		return "argument"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	}
	return "unknown"
}

// ChannelError attaches the error kind and the channel name to an error.
// ChannelError 给错误附加错误分类和通道名称。
type ChannelError struct {
	Kind    ErrorKind
	Channel string
	Err     error
}

func (e *ChannelError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("channel %s: %s error: %s", e.Channel, e.Kind, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// NewChannelError wraps err with a kind and channel name.
// NewChannelError 用分类和通道名称包装 err。
func NewChannelError(kind ErrorKind, channel string, err error) *ChannelError {
	return &ChannelError{Kind: kind, Channel: channel, Err: err}
}

// ConstructionError builds a construction error.
func ConstructionError(channel string, format string, args ...interface{}) *ChannelError {
	return NewChannelError(KindConstruction, channel, fmt.Errorf(format, args...))
}

// ArgumentError builds an argument error.
func ArgumentError(channel string, format string, args ...interface{}) *ChannelError {
	return NewChannelError(KindArgument, channel, fmt.Errorf(format, args...))
}

// TransportError builds a transport error.
func TransportError(channel string, format string, args ...interface{}) *ChannelError {
	return NewChannelError(KindTransport, channel, fmt.Errorf(format, args...))
}

// ProtocolError builds a protocol error.
func ProtocolError(channel string, format string, args ...interface{}) *ChannelError {
	return NewChannelError(KindProtocol, channel, fmt.Errorf(format, args...))
}
