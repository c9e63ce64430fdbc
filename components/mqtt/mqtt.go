/*
 * Copyright 2025 The RuleGo Authors.
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

// Package mqtt implements the mqtt:// transport channel over an MQTT broker.
// 包 mqtt 基于 MQTT broker 实现 mqtt:// 传输通道。
package mqtt

import (
	"context"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/bittoy/channel/types"
	"github.com/bittoy/channel/utils/maps"
)

// Registry collects the implementations of this package for the engine's
// default registry.
var Registry = &types.SafeImplSlice{}

func init() {
	Registry.Add(&Mqtt{})
}

// MqttConfiguration Mqtt 组件的配置结构
// MqttConfiguration configures the mqtt:// transport.
type MqttConfiguration struct {
	// Topic 发布和订阅的主题
	// Topic is published to and subscribed on.
	Topic string `map:"topic"`

	// Client MQTT 客户端标识
	// Client is the MQTT client identifier, defaults to the channel name.
	Client string `map:"client"`

	// Queue 入站消息队列长度
	// Queue is the inbound queue capacity in messages.
	Queue int `map:"queue"`
}

// Mqtt MQTT 传输通道。Post 将数据消息发布到主题；入站发布由 broker 的
// 回调线程入队，由 Process 在所属循环上逐条排空。
// Mqtt is the MQTT transport channel. Post publishes data messages to the
// topic; inbound publishes are enqueued from the broker's callback goroutine
// and drained one per Process call on the owning loop. Open is manual: the
// channel turns Active from Process once the broker connection is up.
//
//	c, _ := ctx.Channel("mqtt://broker.local:1883;name=bus;topic=updates")
type Mqtt struct {
	base types.BaseChannel

	// Config 节点配置
	Config MqttConfiguration

	broker string
	client paho.Client
	token  paho.Token
	in     chan *types.Message
}

// Proto returns the URL scheme tag.
func (x *Mqtt) Proto() string {
	return "mqtt"
}

// New creates a new instance.
func (x *Mqtt) New() types.Impl {
	return &Mqtt{Config: MqttConfiguration{Queue: 64}}
}

// Policy declares the lifecycle behavior: the broker handshake completes
// asynchronously in Process.
func (x *Mqtt) Policy() types.Policy {
	p := types.DefaultPolicy()
	p.Open = types.OpenManual
	return p
}

// Init parses the configuration. The broker address is the URL host part.
func (x *Mqtt) Init(base types.BaseChannel, url *types.Url, master types.Channel) error {
	x.base = base
	if err := maps.Map2Struct(url.Params(), &x.Config); err != nil {
		return err
	}
	if url.Host == "" {
		return types.ConstructionError(base.Name(), "mqtt channel requires a broker address")
	}
	x.broker = "tcp://" + url.Host
	if x.Config.Topic == "" {
		return types.ConstructionError(base.Name(), "mqtt channel requires a `topic` parameter")
	}
	if x.Config.Client == "" {
		x.Config.Client = base.Name()
	}
	if x.Config.Queue <= 0 {
		return types.ConstructionError(base.Name(), "queue size must be positive, got %d", x.Config.Queue)
	}
	return nil
}

// Open starts the broker handshake without waiting for it.
func (x *Mqtt) Open(props types.Props) error {
	x.in = make(chan *types.Message, x.Config.Queue)
	opts := paho.NewClientOptions().
		AddBroker(x.broker).
		SetClientID(x.Config.Client).
		SetConnectRetry(false).
		SetAutoReconnect(false)
	x.client = paho.NewClient(opts)
	x.token = x.client.Connect()
	x.base.DCapsSet(types.DCapsProcess)
	return nil
}

// Close disconnects from the broker.
func (x *Mqtt) Close(force bool) error {
	if x.client != nil {
		if x.client.IsConnected() {
			x.client.Disconnect(250)
		}
		x.client = nil
	}
	x.token = nil
	x.base.DCapsClear(types.DCapsProcess | types.DCapsPending)
	return nil
}

// Process completes the pending handshake, then drains one inbound message
// per call.
func (x *Mqtt) Process(ctx context.Context) error {
	if x.base.State() == types.StateOpening {
		return x.processConnect()
	}
	select {
	case msg := <-x.in:
		x.base.CallbackData(msg)
		if len(x.in) == 0 {
			x.base.DCapsClear(types.DCapsPending)
		}
	default:
		x.base.DCapsClear(types.DCapsPending)
	}
	return nil
}

func (x *Mqtt) processConnect() error {
	if x.token == nil || !x.token.WaitTimeout(time.Millisecond) {
		return nil
	}
	if err := x.token.Error(); err != nil {
		x.base.SetState(types.StateError)
		return types.TransportError(x.base.Name(), "connect %s: %v", x.broker, err)
	}
	x.token = nil
	sub := x.client.Subscribe(x.Config.Topic, 0, x.onPublish)
	sub.Wait()
	if err := sub.Error(); err != nil {
		x.base.SetState(types.StateError)
		return types.TransportError(x.base.Name(), "subscribe %s: %v", x.Config.Topic, err)
	}
	x.base.SetState(types.StateActive)
	return nil
}

// onPublish runs on the broker client's goroutine: enqueue only, the owning
// loop delivers from Process.
func (x *Mqtt) onPublish(client paho.Client, m paho.Message) {
	msg := &types.Message{
		Addr: uint64(m.MessageID()),
		Time: time.Now().UnixNano(),
		Data: append([]byte(nil), m.Payload()...),
	}
	select {
	case x.in <- msg:
		x.base.DCapsSet(types.DCapsPending)
	default:
		x.base.Logger().Printf("channel %s: inbound queue full, message dropped", x.base.Name())
	}
}

// Post publishes one data message to the topic without waiting for the ack.
func (x *Mqtt) Post(msg *types.Message) error {
	if msg.Type != types.MsgData {
		return types.ArgumentError(x.base.Name(), "mqtt accepts only data messages")
	}
	if x.client == nil || !x.client.IsConnected() {
		return types.TransportError(x.base.Name(), "not connected")
	}
	x.client.Publish(x.Config.Topic, 0, false, msg.Data)
	return nil
}

func (x *Mqtt) Destroy() {
	if x.client != nil && x.client.IsConnected() {
		x.client.Disconnect(50)
	}
	x.client = nil
}
