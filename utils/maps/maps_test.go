package maps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Dir   string `map:"dir"`
	Block string `map:"block"`
	Size  int    `map:"size"`
	Sync  bool   `map:"sync"`
}

func TestMap2Struct(t *testing.T) {
	var cfg testConfig
	err := Map2Struct(map[string]string{
		"dir":   "w",
		"block": "1kb",
		"size":  "64",
		"sync":  "true",
		"extra": "ignored",
	}, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "w", cfg.Dir)
	assert.Equal(t, "1kb", cfg.Block)
	assert.Equal(t, 64, cfg.Size)
	assert.True(t, cfg.Sync)
}

func TestMap2StructBadValue(t *testing.T) {
	var cfg testConfig
	err := Map2Struct(map[string]string{"size": "not-a-number"}, &cfg)
	require.Error(t, err)
}

func TestStruct2Map(t *testing.T) {
	m := Struct2Map(&testConfig{Dir: "r", Size: 8})
	assert.Equal(t, "r", m["dir"])
	assert.Equal(t, 8, m["size"])
	assert.Nil(t, Struct2Map(nil))
}

func TestCopy(t *testing.T) {
	dst := map[string]int{"a": 1}
	Copy(dst, map[string]int{"b": 2})
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, dst)
}
