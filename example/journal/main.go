package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/bittoy/channel/engine"
	"github.com/bittoy/channel/types"
)

// 写入日志文件并按序列号回放
// Write a journal and replay it from a sequence number.
func main() {
	dir, err := os.MkdirTemp("", "journal")
	if err != nil {
		log.Fatalln("tempdir", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "data.journal")

	ctx := engine.NewContext()

	w, err := ctx.Channel(fmt.Sprintf("file://%s;name=writer;dir=w;block=4kb", path))
	if err != nil {
		log.Fatalln("writer", err)
	}
	if err := w.Open(); err != nil {
		log.Fatalln("writer open", err)
	}
	for i := 0; i < 100; i++ {
		msg := &types.Message{Seq: int64(10 * i), Data: []byte(fmt.Sprintf("record %d", i))}
		if err := w.Post(msg); err != nil {
			log.Fatalln("post", err)
		}
	}

	r, err := ctx.Channel(fmt.Sprintf("file://%s;name=reader;dir=r;autoclose=yes", path))
	if err != nil {
		log.Fatalln("reader", err)
	}
	r.CallbackAdd(func(ch types.Channel, msg *types.Message) {
		if msg.Type == types.MsgData {
			fmt.Printf("seq=%d data=%s\n", msg.Seq, msg.Data)
		}
	})
	if err := r.Open("seq=900"); err != nil {
		log.Fatalln("reader open", err)
	}
	for r.State() == types.StateActive {
		if err := r.Process(context.Background()); err != nil {
			log.Fatalln("process", err)
		}
	}
}
