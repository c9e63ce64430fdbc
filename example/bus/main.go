package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/bittoy/channel/engine"
	"github.com/bittoy/channel/types"
)

// mqtt:// 传输演示：发布并回显一个主题。需要一个可达的 broker，
// 例如 BROKER=localhost:1883。
// mqtt:// transport demo: publish and echo one topic. Needs a reachable
// broker, e.g. BROKER=localhost:1883.
func main() {
	broker := os.Getenv("BROKER")
	if broker == "" {
		broker = "localhost:1883"
	}

	ctx := engine.NewContext()
	reg := engine.NewStatCollector(ctx)
	_ = reg // register with prometheus.DefaultRegisterer to export

	bus, err := ctx.Channel("mqtt://"+broker+";name=bus;topic=demo;stat=yes", nil)
	if err != nil {
		log.Fatalln("bus", err)
	}
	bus.CallbackAdd(func(ch types.Channel, msg *types.Message) {
		if msg.Type == types.MsgData {
			log.Printf("recv: %s", msg.Data)
		}
	})

	if err := bus.Open(); err != nil {
		log.Fatalln("open", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for bus.State() == types.StateOpening && time.Now().Before(deadline) {
		if err := bus.Process(context.Background()); err != nil {
			log.Fatalln("connect", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if bus.State() != types.StateActive {
		log.Fatalln("no broker at", broker)
	}

	if err := bus.Post(&types.Message{Data: []byte("hello")}); err != nil {
		log.Fatalln("post", err)
	}
	for i := 0; i < 100; i++ {
		if err := bus.Process(context.Background()); err != nil {
			log.Fatalln("process", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	_ = bus.Close()
}
