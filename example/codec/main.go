package main

import (
	"fmt"
	"log"

	"github.com/bittoy/channel/engine"
	"github.com/bittoy/channel/types"
)

var schemeSrc = "yamls://" + `
- name: trade
  id: 10
  fields:
    - {name: symbol, type: string}
    - {name: price, type: double}
    - {name: volume, type: '*int32', options.json.expected-list-size: 8}
`

// json+ 前缀演示：原生消息与线上 JSON 文档互转
// json+ prefix demo: native messages against wire JSON documents.
func main() {
	ctx := engine.NewContext()

	typed, err := ctx.Channel("json+direct://;name=typed", types.Props{types.KeyScheme: schemeSrc})
	if err != nil {
		log.Fatalln("typed", err)
	}
	raw, err := ctx.Channel("direct://;name=raw;master=typed/json")
	if err != nil {
		log.Fatalln("raw", err)
	}

	raw.CallbackAdd(func(ch types.Channel, msg *types.Message) {
		if msg.Type == types.MsgData {
			fmt.Printf("wire: %s\n", msg.Data)
		}
	})
	typed.CallbackAdd(func(ch types.Channel, msg *types.Message) {
		if msg.Type == types.MsgData {
			fmt.Printf("native: msgid=%d seq=%d %s\n", msg.MsgID, msg.Seq, msg.Data)
		}
	})

	if err := typed.Open(); err != nil {
		log.Fatalln("typed open", err)
	}
	if err := raw.Open(); err != nil {
		log.Fatalln("raw open", err)
	}

	post := []byte(`{"_tll_name": "trade", "symbol": "XYZ", "price": 12.5, "volume": [100, 200]}`)
	if err := typed.Post(&types.Message{Seq: 1, Data: post}); err != nil {
		log.Fatalln("post", err)
	}

	wire := []byte(`{"_tll_name": "trade", "_tll_seq": 2, "symbol": "ABC", "price": 7.25}`)
	if err := raw.Post(&types.Message{Data: wire}); err != nil {
		log.Fatalln("post wire", err)
	}
}
