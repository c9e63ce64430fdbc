package scheme

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const body = `
- name: sub
  fields:
    - {name: s0, type: int32}
    - {name: s1, type: 'double[4]'}
  options: {a: 1, b: 2}

- name: test
  id: 1
  fields:
    - {name: f0, type: int8, options: {a: 10, b: 20}}
    - {name: f1, type: int64}
    - {name: f2, type: double}
    - {name: f3, type: byte32, options.type: string}
    - {name: f4, type: '*int16'}
    - {name: f5, type: 'sub[4]'}
    - {name: f6, type: string}
    - {name: f7, type: '**int16', options.json.expected-list-size: 4}

- name: enums
  id: 10
  enums:
    e1: {type: int8,  enum: {A: 1, B: 2}}
    e8: {type: int64, enum: {G: 1, H: 2}}
  fields:
    - {name: f0, type: e1, options.json.enum-as-int: yes}
    - {name: f1, type: e8}
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(body))
	require.NoError(t, err)
	require.Len(t, s.Messages, 3)

	sub := s.Message("sub")
	require.NotNil(t, sub)
	assert.Equal(t, int32(0), sub.MsgID)
	assert.Equal(t, "1", sub.Options.Get("a", ""))
	assert.Equal(t, "2", sub.Options.Get("b", ""))
	require.Len(t, sub.Fields, 2)
	assert.Equal(t, KindInt32, sub.Fields[0].Type.Kind)
	require.Equal(t, KindArray, sub.Fields[1].Type.Kind)
	assert.Equal(t, 4, sub.Fields[1].Type.Size)
	assert.Equal(t, KindDouble, sub.Fields[1].Type.Elem.Kind)

	msg := s.Message("test")
	require.NotNil(t, msg)
	assert.Equal(t, int32(1), msg.MsgID)
	assert.Equal(t, msg, s.MessageByID(1))

	f0 := msg.Field("f0")
	require.NotNil(t, f0)
	assert.Equal(t, KindInt8, f0.Type.Kind)
	assert.Equal(t, "10", f0.Options.Get("a", ""))

	f3 := msg.Field("f3")
	assert.Equal(t, KindBytes, f3.Type.Kind)
	assert.Equal(t, 32, f3.Type.Size)
	assert.Equal(t, "string", f3.Options.Get("type", ""))

	f4 := msg.Field("f4")
	require.Equal(t, KindList, f4.Type.Kind)
	assert.Equal(t, KindInt16, f4.Type.Elem.Kind)

	f5 := msg.Field("f5")
	require.Equal(t, KindArray, f5.Type.Kind)
	require.Equal(t, KindMessage, f5.Type.Elem.Kind)
	assert.Equal(t, sub, f5.Type.Elem.Msg)

	f7 := msg.Field("f7")
	require.Equal(t, KindList, f7.Type.Kind)
	require.Equal(t, KindList, f7.Type.Elem.Kind)
	assert.Equal(t, KindInt16, f7.Type.Elem.Elem.Kind)
	assert.Equal(t, 4, f7.Options.Int("json.expected-list-size", 0))

	enums := s.Message("enums")
	require.NotNil(t, enums)
	e1 := enums.Field("f0")
	require.Equal(t, KindEnum, e1.Type.Kind)
	assert.True(t, e1.Options.Bool("json.enum-as-int"))
	v, ok := e1.Type.Enum.Value("A")
	require.True(t, ok)
	assert.Equal(t, int64(1), v)
	n, ok := e1.Type.Enum.ValueName(2)
	require.True(t, ok)
	assert.Equal(t, "B", n)
}

func TestParseInlineList(t *testing.T) {
	s, err := Load("yamls://[{name: Control, id: 10}]")
	require.NoError(t, err)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, "Control", s.Messages[0].Name)
	assert.Equal(t, int32(10), s.Messages[0].MsgID)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheme.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	s, err := Load("yaml://" + path)
	require.NoError(t, err)
	assert.NotNil(t, s.Message("test"))

	_, err = Load("yaml://" + path + ".missing")
	require.Error(t, err)
	_, err = Load("bogus://x")
	require.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		`- {fields: []}`,                                   // missing name
		`- {name: a, fields: [{name: f, type: unknown7}]}`, // unknown type
		`- {name: a, fields: [{name: f, type: 'int8[0]'}]}`,
		`- {name: a, fields: [{name: f, type: int8}, {name: f, type: int8}]}`,
		"- {name: a}\n- {name: a}",
	}
	for _, c := range cases {
		_, err := Parse([]byte(c))
		assert.Error(t, err, c)
	}
}

func TestForwardReferenceFails(t *testing.T) {
	_, err := Parse([]byte(`
- name: outer
  fields: [{name: f, type: inner}]
- name: inner
  fields: [{name: g, type: int8}]
`))
	require.Error(t, err)
}
