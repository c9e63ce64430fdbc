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

// Package file implements the append-only journaled log transport.
// 包 file 实现只追加的日志文件传输。
//
// The journal is segmented into fixed-size blocks (default 1kb, `block=`
// parameter). Every record is framed `{size i32, msgid i32, seq i64}`
// little-endian followed by the payload. A frame size of 0 marks the tail,
// -1 marks a block boundary sentinel: the reader jumps to the next block
// boundary, where a 4-byte block header (value 4) precedes the first record.
// Records never span blocks. Block 0 starts with a Meta record carrying the
// version, the block size and the length of the scheme record that follows
// it; readers take the block size from the meta, not from their own
// parameters.
// 日志按固定大小的块分段（默认 1kb，`block=` 参数）。每条记录以小端
// `{size i32, msgid i32, seq i64}` 帧开头，后随负载。帧 size 为 0 标记尾部，
// -1 标记块边界哨兵：读者跳到下一个块边界，那里 4 字节块头（值为 4）位于
// 第一条记录之前。记录从不跨块。块 0 以携带版本、块大小和其后 scheme 记录
// 长度的 Meta 记录开始；读者从 meta 获取块大小，而不是自己的参数。
//
// Writers keep a strictly increasing sequence. Readers position with the
// `seq=` open parameter using a block-granular binary search over first
// record sequences, then a forward scan inside the located block.
// 写者保持严格递增的序列。读者用 `seq=` 打开参数定位：对块首记录序列做
// 块粒度二分查找，然后在定位的块内前向扫描。
package file

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bittoy/channel/scheme"
	"github.com/bittoy/channel/types"
	"github.com/bittoy/channel/utils/maps"
)

// Registry collects the implementations of this package for the engine's
// default registry.
var Registry = &types.SafeImplSlice{}

func init() {
	Registry.Add(&File{})
}

const (
	frameSize       = 16
	metaRecordSize  = 0x28
	blockHeaderSize = 4
	defaultBlock    = 1024
	// maxRecordSize is the unconditional record cap.
	maxRecordSize = 1 << 20
	metaVersion   = 1
)

var metaMagic = [4]byte{'M', 'e', 't', 'a'}

// schemeMsgID tags the scheme record following the meta.
var schemeMsgID = int32(binary.LittleEndian.Uint32([]byte("Schm")))

// FileConfiguration File组件的配置结构
// FileConfiguration configures the file:// transport.
type FileConfiguration struct {
	// Dir 方向：r 读取，w 写入
	// Dir selects the direction: `r` reads, `w` writes. Default is `r`.
	Dir string `map:"dir"`

	// Block 块大小，支持 kb/mb 后缀
	// Block is the block size, `kb` and `mb` suffixes accepted.
	Block string `map:"block"`

	// Scheme 写入 meta 的 scheme 源
	// Scheme is the scheme source embedded into the meta by the writer.
	Scheme string `map:"scheme"`

	// Autoclose 读到尾部后自动关闭
	// Autoclose closes the reader when the tail is reached.
	Autoclose string `map:"autoclose"`
}

// File 文件日志通道。写方向追加记录，读方向逐条回放并跟随文件增长。
// File is the journal channel. The write direction appends records, the read
// direction replays one record per Process call and follows file growth.
type File struct {
	base types.BaseChannel

	// Config 节点配置
	Config FileConfiguration

	path      string
	write     bool
	autoclose bool
	block     int64

	f      *os.File
	offset int64

	lastSeq int64
	haveSeq bool

	// dataStart is the first data record offset in block 0, past the meta and
	// the optional scheme record.
	dataStart int64
}

// Proto returns the URL scheme tag.
func (x *File) Proto() string {
	return "file"
}

// New creates a new instance.
func (x *File) New() types.Impl {
	return &File{}
}

// Policy declares the lifecycle behavior. The writer needs no processing at
// all, the reader is driven by Process.
func (x *File) Policy() types.Policy {
	p := types.DefaultPolicy()
	if x.write {
		p.Process = types.ProcessNever
	}
	return p
}

// Init parses the configuration. The journal path is the URL host part.
func (x *File) Init(base types.BaseChannel, url *types.Url, master types.Channel) error {
	x.base = base
	if err := maps.Map2Struct(url.Params(), &x.Config); err != nil {
		return err
	}
	x.path = url.Host
	if x.path == "" {
		return types.ConstructionError(base.Name(), "file channel requires a path")
	}
	switch x.Config.Dir {
	case "", "r":
		x.write = false
	case "w":
		x.write = true
	default:
		return types.ConstructionError(base.Name(), "bad dir %q, expected r or w", x.Config.Dir)
	}
	block := int64(defaultBlock)
	if x.Config.Block != "" {
		var err error
		if block, err = parseSize(x.Config.Block); err != nil {
			return types.ConstructionError(base.Name(), "bad block size %q", x.Config.Block)
		}
	}
	if block < frameSize+blockHeaderSize {
		return types.ConstructionError(base.Name(), "block size %d too small", block)
	}
	x.block = block
	switch x.Config.Autoclose {
	case "yes", "true", "1":
		x.autoclose = true
	}
	return nil
}

// Open opens the journal for the configured direction.
func (x *File) Open(props types.Props) error {
	if x.write {
		return x.openWriter()
	}
	return x.openReader(props)
}

func (x *File) openWriter() error {
	f, err := os.OpenFile(x.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return types.TransportError(x.base.Name(), "open %s: %v", x.path, err)
	}
	x.f = f
	x.offset = 0
	x.haveSeq = false
	if err := x.writeMeta(); err != nil {
		f.Close()
		x.f = nil
		return err
	}
	x.base.ConfigSet("block", formatSize(x.block))
	return nil
}

// writeMeta emits the meta record and, when a scheme is configured, the
// scheme record following it.
func (x *File) writeMeta() error {
	s := x.Config.Scheme
	if s != "" && metaRecordSize+frameSize+int64(len(s)) > x.block {
		return types.ArgumentError(x.base.Name(), "scheme of %d bytes does not fit the first block", len(s))
	}
	buf := make([]byte, metaRecordSize)
	binary.LittleEndian.PutUint32(buf[0:], metaRecordSize)
	copy(buf[4:8], metaMagic[:])
	binary.LittleEndian.PutUint32(buf[16:], metaVersion)
	binary.LittleEndian.PutUint32(buf[20:], uint32(x.block))
	binary.LittleEndian.PutUint32(buf[24:], uint32(len(s)))
	if _, err := x.f.WriteAt(buf, 0); err != nil {
		return types.TransportError(x.base.Name(), "write meta: %v", err)
	}
	x.offset = metaRecordSize
	if s != "" {
		if err := x.writeRecord(schemeMsgID, 0, []byte(s)); err != nil {
			return err
		}
	}
	x.dataStart = x.offset
	return nil
}

func (x *File) openReader(props types.Props) error {
	f, err := os.Open(x.path)
	if err != nil {
		return types.TransportError(x.base.Name(), "open %s: %v", x.path, err)
	}
	x.f = f
	if err := x.readMeta(); err != nil {
		f.Close()
		x.f = nil
		return err
	}
	x.offset = x.dataStart
	x.haveSeq = false
	if s := props.Get("seq", ""); s != "" {
		target, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			f.Close()
			x.f = nil
			return types.ArgumentError(x.base.Name(), "bad seq %q", s)
		}
		if err := x.seek(target); err != nil {
			f.Close()
			x.f = nil
			return err
		}
	}
	x.base.DCapsSet(types.DCapsProcess | types.DCapsPending)
	return nil
}

// readMeta reads the meta record, adopting the block size recorded by the
// writer, and loads the embedded scheme when present.
func (x *File) readMeta() error {
	buf := make([]byte, metaRecordSize)
	if _, err := x.f.ReadAt(buf, 0); err != nil {
		return types.TransportError(x.base.Name(), "read meta: %v", err)
	}
	if binary.LittleEndian.Uint32(buf[0:]) != metaRecordSize || [4]byte(buf[4:8]) != metaMagic {
		return types.ProtocolError(x.base.Name(), "bad meta record")
	}
	if block := int64(binary.LittleEndian.Uint32(buf[20:])); block != 0 {
		x.block = block
	}
	x.base.ConfigSet("block", formatSize(x.block))
	x.dataStart = metaRecordSize
	schemeLen := int64(binary.LittleEndian.Uint32(buf[24:]))
	if schemeLen == 0 {
		return nil
	}
	frame := make([]byte, frameSize)
	if _, err := x.f.ReadAt(frame, metaRecordSize); err != nil {
		return types.TransportError(x.base.Name(), "read scheme record: %v", err)
	}
	size := int32(binary.LittleEndian.Uint32(frame[0:]))
	msgid := int32(binary.LittleEndian.Uint32(frame[4:]))
	if msgid != schemeMsgID || int64(size) != frameSize+schemeLen {
		return types.ProtocolError(x.base.Name(), "bad scheme record")
	}
	body := make([]byte, schemeLen)
	if _, err := x.f.ReadAt(body, metaRecordSize+frameSize); err != nil {
		return types.TransportError(x.base.Name(), "read scheme record: %v", err)
	}
	s, err := scheme.Load(string(body))
	if err != nil {
		return types.ProtocolError(x.base.Name(), "embedded scheme: %v", err)
	}
	x.base.SetScheme(s)
	x.dataStart = metaRecordSize + frameSize + schemeLen
	return nil
}

// Close releases the descriptor. The position survives in the instance, a
// reopened channel starts afresh.
func (x *File) Close(force bool) error {
	if x.f != nil {
		x.f.Close()
		x.f = nil
	}
	x.base.DCapsClear(types.DCapsProcess | types.DCapsPending)
	return nil
}

// Post appends one data record, keeping the sequence strictly increasing.
func (x *File) Post(msg *types.Message) error {
	if !x.write {
		return types.TransportError(x.base.Name(), "channel is read-only")
	}
	if msg.Type != types.MsgData {
		return types.ArgumentError(x.base.Name(), "journal accepts only data messages")
	}
	if x.haveSeq && msg.Seq <= x.lastSeq {
		return types.ArgumentError(x.base.Name(), "non-monotonic seq %d, last %d", msg.Seq, x.lastSeq)
	}
	if err := x.writeRecord(msg.MsgID, msg.Seq, msg.Data); err != nil {
		return err
	}
	x.lastSeq = msg.Seq
	x.haveSeq = true
	return nil
}

// writeRecord frames and appends one record, never splitting it across a
// block boundary: a sentinel frame fills the gap and the record restarts
// after the next block header.
func (x *File) writeRecord(msgid int32, seq int64, data []byte) error {
	size := int64(frameSize + len(data))
	if size > maxRecordSize {
		return types.ArgumentError(x.base.Name(), "record size %d above hard limit", size)
	}
	if size > x.block-blockHeaderSize {
		return types.ArgumentError(x.base.Name(), "record size %d does not fit block %d", size, x.block)
	}
	blockEnd := (x.offset/x.block + 1) * x.block
	if x.offset+size > blockEnd {
		if blockEnd-x.offset >= frameSize {
			sentinel := make([]byte, frameSize)
			sentinelMsgID := int32(-1)
			binary.LittleEndian.PutUint32(sentinel[0:], uint32(sentinelMsgID))
			if _, err := x.f.WriteAt(sentinel, x.offset); err != nil {
				return types.TransportError(x.base.Name(), "write sentinel: %v", err)
			}
		}
		x.offset = blockEnd
	}
	if x.offset%x.block == 0 && x.offset != 0 {
		hdr := make([]byte, blockHeaderSize)
		binary.LittleEndian.PutUint32(hdr, blockHeaderSize)
		if _, err := x.f.WriteAt(hdr, x.offset); err != nil {
			return types.TransportError(x.base.Name(), "write block header: %v", err)
		}
		x.offset += blockHeaderSize
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:], uint32(size))
	binary.LittleEndian.PutUint32(buf[4:], uint32(msgid))
	binary.LittleEndian.PutUint64(buf[8:], uint64(seq))
	copy(buf[frameSize:], data)
	if _, err := x.f.WriteAt(buf, x.offset); err != nil {
		return types.TransportError(x.base.Name(), "write record: %v", err)
	}
	x.offset += size
	return nil
}

// Process replays one record. At the tail the Pending capability is cleared
// while Process stays set, so the loop re-polls; with autoclose the channel
// closes instead.
func (x *File) Process(ctx context.Context) error {
	if x.f == nil {
		return nil
	}
	frame, off, err := x.nextFrame()
	if err != nil {
		x.base.SetState(types.StateError)
		return err
	}
	if frame == nil {
		x.base.DCapsClear(types.DCapsPending)
		if x.autoclose {
			return x.base.Close()
		}
		return nil
	}
	if x.haveSeq && frame.seq <= x.lastSeq {
		x.base.SetState(types.StateError)
		return types.ProtocolError(x.base.Name(), "non-monotonic seq %d after %d", frame.seq, x.lastSeq)
	}
	body := make([]byte, frame.size-frameSize)
	if _, err := x.f.ReadAt(body, off+frameSize); err != nil {
		x.base.SetState(types.StateError)
		return types.TransportError(x.base.Name(), "read record: %v", err)
	}
	x.lastSeq = frame.seq
	x.haveSeq = true
	x.offset = off + frame.size
	x.base.CallbackData(&types.Message{
		MsgID: frame.msgid,
		Seq:   frame.seq,
		Data:  body,
	})
	return nil
}

type frame struct {
	size  int64
	msgid int32
	seq   int64
}

// nextFrame walks from the current offset to the next data frame, skipping
// block headers, boundary sentinels and zero padding. A nil frame means the
// tail was reached.
func (x *File) nextFrame() (*frame, int64, error) {
	st, err := x.f.Stat()
	if err != nil {
		return nil, 0, types.TransportError(x.base.Name(), "stat: %v", err)
	}
	fsize := st.Size()
	off := x.offset
	for {
		if off%x.block == 0 && off != 0 {
			if off+blockHeaderSize+frameSize > fsize {
				x.offset = off
				return nil, 0, nil
			}
			hdr := make([]byte, blockHeaderSize)
			if _, err := x.f.ReadAt(hdr, off); err != nil {
				return nil, 0, types.TransportError(x.base.Name(), "read block header: %v", err)
			}
			if binary.LittleEndian.Uint32(hdr) != blockHeaderSize {
				return nil, 0, types.ProtocolError(x.base.Name(), "bad block header at offset %d", off)
			}
			off += blockHeaderSize
		}
		if off+frameSize > fsize {
			x.offset = off
			return nil, 0, nil
		}
		buf := make([]byte, frameSize)
		if _, err := x.f.ReadAt(buf, off); err != nil {
			return nil, 0, types.TransportError(x.base.Name(), "read frame: %v", err)
		}
		size := int32(binary.LittleEndian.Uint32(buf[0:]))
		next := (off/x.block + 1) * x.block
		switch {
		case size == -1:
			off = next
			continue
		case size == 0:
			// zero padding: only a tail marker when the file has no further
			// blocks yet
			if fsize > next {
				off = next
				continue
			}
			x.offset = off
			return nil, 0, nil
		case size < frameSize || int64(size) > x.block:
			return nil, 0, types.ProtocolError(x.base.Name(), "corrupted frame size %d at offset %d", size, off)
		}
		if off+int64(size) > fsize {
			// partially written record, wait for the writer
			x.offset = off
			return nil, 0, nil
		}
		return &frame{
			size:  int64(size),
			msgid: int32(binary.LittleEndian.Uint32(buf[4:])),
			seq:   int64(binary.LittleEndian.Uint64(buf[8:])),
		}, off, nil
	}
}

// seek positions the reader at the first record with seq >= target using a
// block-granular binary search over first record sequences, then a forward
// scan inside the located block.
func (x *File) seek(target int64) error {
	st, err := x.f.Stat()
	if err != nil {
		return types.TransportError(x.base.Name(), "stat: %v", err)
	}
	fsize := st.Size()
	nb := (fsize + x.block - 1) / x.block

	first, ok, err := x.firstSeq(0)
	if err != nil {
		return err
	}
	if !ok || target <= first {
		x.offset = x.dataStart
		return nil
	}

	best := int64(0)
	lo, hi := int64(1), nb-1
	for lo <= hi {
		mid := (lo + hi) / 2
		s, ok, err := x.firstSeq(mid)
		if err != nil {
			return err
		}
		if !ok || s > target {
			hi = mid - 1
		} else {
			best = mid
			lo = mid + 1
		}
	}

	if best == 0 {
		x.offset = x.dataStart
	} else {
		x.offset = best * x.block
	}
	x.haveSeq = false
	for {
		f, off, err := x.nextFrame()
		if err != nil {
			return err
		}
		if f == nil {
			return nil
		}
		if f.seq >= target {
			x.offset = off
			return nil
		}
		x.lastSeq = f.seq
		x.haveSeq = true
		x.offset = off + f.size
	}
}

// firstSeq probes the sequence of the first record in a block.
func (x *File) firstSeq(block int64) (int64, bool, error) {
	saved := x.offset
	defer func() { x.offset = saved }()
	if block == 0 {
		x.offset = x.dataStart
	} else {
		x.offset = block * x.block
	}
	f, _, err := x.nextFrame()
	if err != nil {
		return 0, false, err
	}
	if f == nil {
		return 0, false, nil
	}
	return f.seq, true, nil
}

func (x *File) Destroy() {
	if x.f != nil {
		x.f.Close()
		x.f = nil
	}
}

// parseSize parses a block size with optional kb/mb suffix.
func parseSize(s string) (int64, error) {
	mul := int64(1)
	low := strings.ToLower(s)
	switch {
	case strings.HasSuffix(low, "kb"):
		mul = 1024
		low = low[:len(low)-2]
	case strings.HasSuffix(low, "mb"):
		mul = 1 << 20
		low = low[:len(low)-2]
	case strings.HasSuffix(low, "b"):
		low = low[:len(low)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(low), 10, 64)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	return n * mul, nil
}

// formatSize renders a size the way the writer parameters spell it.
func formatSize(n int64) string {
	switch {
	case n%(1<<20) == 0:
		return strconv.FormatInt(n/(1<<20), 10) + "mb"
	case n%1024 == 0:
		return strconv.FormatInt(n/1024, 10) + "kb"
	}
	return strconv.FormatInt(n, 10)
}
