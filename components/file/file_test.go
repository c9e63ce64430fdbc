package file_test

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bittoy/channel/engine"
	"github.com/bittoy/channel/types"
)

// metaSize is the journal prologue: meta frame plus meta payload.
const metaSize = 0x28

type frame struct {
	size  int32
	msgid int32
	seq   int64
}

func readFrame(t *testing.T, data []byte) frame {
	t.Helper()
	require.GreaterOrEqual(t, len(data), 16)
	return frame{
		size:  int32(binary.LittleEndian.Uint32(data[0:])),
		msgid: int32(binary.LittleEndian.Uint32(data[4:])),
		seq:   int64(binary.LittleEndian.Uint64(data[8:])),
	}
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	st, err := os.Stat(path)
	require.NoError(t, err)
	return st.Size()
}

type accum struct {
	result []*types.Message
}

func (a *accum) callback(ch types.Channel, msg *types.Message) {
	if msg.Type == types.MsgData {
		a.result = append(a.result, msg.Copy())
	}
}

func newPair(t *testing.T) (*engine.Context, types.Channel, types.Channel, string) {
	t.Helper()
	ctx := engine.NewContext(types.NewConfig(types.WithLogger(types.NopLogger())))
	path := filepath.Join(t.TempDir(), "file.dat")
	w, err := ctx.Channel(fmt.Sprintf("file://%s;name=writer;dir=w;block=1kb", path))
	require.NoError(t, err)
	r, err := ctx.Channel(fmt.Sprintf("file://%s;name=reader;dir=r;autoclose=no", path))
	require.NoError(t, err)
	return ctx, w, r, path
}

func post(t *testing.T, c types.Channel, data []byte, seq int64, msgid int32) {
	t.Helper()
	require.NoError(t, c.Post(&types.Message{MsgID: msgid, Seq: seq, Data: data}))
}

func fill(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestBasic(t *testing.T) {
	_, w, r, path := newPair(t)
	bg := context.Background()

	require.NoError(t, w.Open())
	assert.Equal(t, types.DCapsZero, w.DCaps())

	require.Error(t, w.Post(&types.Message{Data: fill(1024*1024, 'x')}))
	require.Error(t, w.Post(&types.Message{Data: fill(1024-15, 'x')}))

	assert.Equal(t, int64(metaSize), fileSize(t, path))

	post(t, w, fill(128, 'a'), 0, 0)
	assert.Equal(t, int64(metaSize+(128+16)*1), fileSize(t, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	want := append([]byte{0x28, 0, 0, 0}, []byte("Meta")...)
	want = append(want, make([]byte, 8)...)
	assert.Equal(t, want, raw[:16])

	rec := raw[metaSize:]
	assert.Equal(t, frame{128 + 16, 0, 0}, readFrame(t, rec))
	assert.Equal(t, fill(128, 'a'), rec[16:128+16])

	post(t, w, fill(128, 'b'), 1, 10)
	assert.Equal(t, int64(metaSize+(128+16)*2), fileSize(t, path))

	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	rec = raw[metaSize+128+16:]
	assert.Equal(t, frame{128 + 16, 10, 1}, readFrame(t, rec))
	assert.Equal(t, fill(128, 'b'), rec[16:128+16])

	var a accum
	r.CallbackAdd(a.callback)
	require.NoError(t, r.Open())
	assert.Equal(t, types.DCapsProcess|types.DCapsPending, r.DCaps())

	require.NoError(t, r.Process(bg))
	require.Len(t, a.result, 1)
	assert.Equal(t, int64(0), a.result[0].Seq)
	assert.Equal(t, int32(0), a.result[0].MsgID)
	assert.Equal(t, fill(128, 'a'), a.result[0].Data)
	a.result = nil

	require.NoError(t, r.Process(bg))
	require.Len(t, a.result, 1)
	assert.Equal(t, int64(1), a.result[0].Seq)
	assert.Equal(t, int32(10), a.result[0].MsgID)
	assert.Equal(t, fill(128, 'b'), a.result[0].Data)
	a.result = nil

	require.NoError(t, r.Process(bg))
	assert.Empty(t, a.result)
	assert.Equal(t, types.DCapsProcess, r.DCaps())

	// the reader follows file growth
	post(t, w, fill(128, 'c'), 2, 20)
	require.NoError(t, r.Process(bg))
	require.Len(t, a.result, 1)
	assert.Equal(t, int64(2), a.result[0].Seq)
	assert.Equal(t, int32(20), a.result[0].MsgID)
	assert.Equal(t, fill(128, 'c'), a.result[0].Data)
}

func TestOpenError(t *testing.T) {
	_, w, r, path := newPair(t)

	require.Error(t, r.Open())
	assert.Equal(t, types.StateError, r.State())

	require.NoError(t, os.Mkdir(path, 0o755))
	require.Error(t, w.Open())
	assert.Equal(t, types.StateError, w.State())
}

func TestBlockBoundary(t *testing.T) {
	_, w, r, path := newPair(t)
	bg := context.Background()

	require.NoError(t, w.Open())
	assert.Equal(t, int64(metaSize), fileSize(t, path))

	post(t, w, fill(512, 'a'), 0, 0)
	assert.Equal(t, int64(metaSize+(512+16)*1), fileSize(t, path))

	var a accum
	r.CallbackAdd(a.callback)
	require.NoError(t, r.Open())

	require.NoError(t, r.Process(bg))
	require.Len(t, a.result, 1)
	assert.Equal(t, fill(512, 'a'), a.result[0].Data)
	a.result = nil

	require.NoError(t, r.Process(bg))
	assert.Empty(t, a.result)
	assert.Equal(t, types.DCapsProcess, r.DCaps())

	post(t, w, fill(512, 'b'), 1, 10)
	assert.Equal(t, int64(1024+4+(512+16)*1), fileSize(t, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	// boundary sentinel where the second record did not fit
	assert.Equal(t, frame{-1, 0, 0}, readFrame(t, raw[metaSize+512+16:]))
	// block header before the relocated record
	assert.Equal(t, []byte{4, 0, 0, 0}, raw[1024:1028])
	assert.Equal(t, frame{512 + 16, 10, 1}, readFrame(t, raw[1028:]))
	assert.Equal(t, fill(512, 'b'), raw[1028+16:1028+16+512])

	require.NoError(t, r.Process(bg))
	require.Len(t, a.result, 1)
	assert.Equal(t, int64(1), a.result[0].Seq)
	assert.Equal(t, fill(512, 'b'), a.result[0].Data)
}

func TestOpenSeq(t *testing.T) {
	cases := []struct {
		seq  string
		want int64
	}{
		{"", 10},
		{"0", 10},
		{"5", 10},
		{"100", 100},
		{"105", 110},
	}
	for _, tc := range cases {
		t.Run("seq="+tc.seq, func(t *testing.T) {
			ctx, w, _, path := newPair(t)
			bg := context.Background()

			require.NoError(t, w.Open())
			for i := 0; i < 100; i++ {
				post(t, w, fill(3*i, 'x'), int64(10*(i+1)), int32(i))
			}

			r, err := ctx.Channel(fmt.Sprintf("file://%s;name=seek;dir=r", path))
			require.NoError(t, err)
			var a accum
			r.CallbackAdd(a.callback)
			if tc.seq == "" {
				require.NoError(t, r.Open())
			} else {
				require.NoError(t, r.Open("seq="+tc.seq))
			}
			require.NoError(t, r.Process(bg))
			require.Len(t, a.result, 1)
			assert.Equal(t, tc.want, a.result[0].Seq)
			assert.Equal(t, int32(tc.want/10-1), a.result[0].MsgID)
			assert.Equal(t, int(3*(tc.want/10-1)), len(a.result[0].Data))
		})
	}
}

func TestMeta(t *testing.T) {
	ctx := engine.NewContext(types.NewConfig(types.WithLogger(types.NopLogger())))
	path := filepath.Join(t.TempDir(), "file.dat")
	schemeSrc := "yamls://[{name: msg, fields: [{name: f0, type: int32}]}]"

	w, err := ctx.Channel(fmt.Sprintf("file://%s;name=writer;dir=w;block=1kb", path),
		types.Props{types.KeyScheme: schemeSrc})
	require.NoError(t, err)
	// the reader's own block parameter loses against the journal meta
	r, err := ctx.Channel(fmt.Sprintf("file://%s;name=reader;dir=r;block=4kb", path))
	require.NoError(t, err)

	require.NoError(t, w.Open())
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, r.Open())
	require.NotNil(t, r.Scheme())
	require.Len(t, r.Scheme().Messages, 1)
	assert.Equal(t, "msg", r.Scheme().Messages[0].Name)
	assert.Equal(t, "1kb", r.Config().Get("block", ""))
}

func TestMetaSurvivesRecords(t *testing.T) {
	ctx := engine.NewContext(types.NewConfig(types.WithLogger(types.NopLogger())))
	path := filepath.Join(t.TempDir(), "file.dat")
	schemeSrc := "yamls://[{name: msg, fields: [{name: f0, type: int32}]}]"

	w, err := ctx.Channel(fmt.Sprintf("file://%s;name=writer;dir=w;block=1kb", path),
		types.Props{types.KeyScheme: schemeSrc})
	require.NoError(t, err)
	require.NoError(t, w.Open())
	for i := 0; i < 50; i++ {
		post(t, w, fill(100, 'x'), int64(i), int32(i))
	}

	r, err := ctx.Channel(fmt.Sprintf("file://%s;name=reader;dir=r", path))
	require.NoError(t, err)
	var a accum
	r.CallbackAdd(a.callback)
	require.NoError(t, r.Open("seq=25"))
	require.NoError(t, r.Process(context.Background()))
	require.Len(t, a.result, 1)
	assert.Equal(t, int64(25), a.result[0].Seq)
}

func TestAutoclose(t *testing.T) {
	ctx, w, _, path := newPair(t)
	bg := context.Background()

	require.NoError(t, w.Open())
	for i := 0; i < 10; i++ {
		post(t, w, fill(3*i, 'x'), int64(10*(i+1)), int32(i))
	}

	r, err := ctx.Channel(fmt.Sprintf("file://%s;name=tail;dir=r;autoclose=yes", path))
	require.NoError(t, err)
	var a accum
	r.CallbackAdd(a.callback)
	require.NoError(t, r.Open("seq=50"))
	for i := 0; i < 11; i++ {
		require.NoError(t, r.Process(bg))
	}
	var seqs []int64
	for _, m := range a.result {
		seqs = append(seqs, m.Seq)
	}
	assert.Equal(t, []int64{50, 60, 70, 80, 90, 100}, seqs)
	assert.Equal(t, types.StateClosed, r.State())
}

func TestNonMonotonicSeqFails(t *testing.T) {
	_, w, _, _ := newPair(t)
	require.NoError(t, w.Open())
	post(t, w, []byte("a"), 10, 0)
	require.Error(t, w.Post(&types.Message{Seq: 10, Data: []byte("b")}))
	require.Error(t, w.Post(&types.Message{Seq: 9, Data: []byte("c")}))
	post(t, w, []byte("d"), 11, 0)
}

func TestCorruptedFrame(t *testing.T) {
	ctx, w, r, path := newPair(t)
	bg := context.Background()

	require.NoError(t, w.Open())
	post(t, w, fill(32, 'a'), 0, 0)
	require.NoError(t, w.Close())

	// corrupt the record frame size in place
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	bad := make([]byte, 4)
	binary.LittleEndian.PutUint32(bad, 7)
	_, err = f.WriteAt(bad, metaSize)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, r.Open())
	require.Error(t, r.Process(bg))
	assert.Equal(t, types.StateError, r.State())

	_ = ctx
}
