package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSet(t *testing.T) {
	c := New()
	assert.Equal(t, "fallback", c.Get("a.b", "fallback"))
	require.NoError(t, c.Set("a.b", "1"))
	assert.Equal(t, "1", c.Get("a.b", ""))
	assert.True(t, c.Has("a.b"))
	assert.False(t, c.Has("a"))
	require.NoError(t, c.Set("a.b", "2"))
	assert.Equal(t, "2", c.Get("a.b", ""))
	assert.Error(t, c.Set("", "x"))
}

func TestSubViewObservesMutations(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("a.b.c", "1"))
	sub := c.Sub("a.b")
	require.NotNil(t, sub)
	assert.Equal(t, "1", sub.Get("c", ""))

	// live view over the backing node
	require.NoError(t, c.Set("a.b.c", "2"))
	assert.Equal(t, "2", sub.Get("c", ""))
	require.NoError(t, sub.Set("d", "3"))
	assert.Equal(t, "3", c.Get("a.b.d", ""))

	assert.Nil(t, c.Sub("a.missing"))
}

func TestWriteGuard(t *testing.T) {
	c := New()
	c.Protect("info")
	require.NoError(t, c.Internal().Set("info.echo", "yes"))

	assert.Error(t, c.Set("info.echo", "no"))
	assert.Error(t, c.Set("info.other", "x"))
	assert.Error(t, c.Unlink("info"))
	assert.Error(t, c.Unlink("info.echo"))
	assert.Equal(t, "yes", c.Get("info.echo", ""))

	// views inherit the guard
	sub := c.Sub("info")
	require.NotNil(t, sub)
	assert.Error(t, sub.Set("echo", "no"))

	// the internal handle bypasses it
	require.NoError(t, c.Internal().Set("info.echo", "v2"))
	assert.Equal(t, "v2", c.Get("info.echo", ""))
	require.NoError(t, c.Internal().Unlink("info.echo"))
	assert.False(t, c.Has("info.echo"))
}

func TestUnlink(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("a.b", "1"))
	require.NoError(t, c.Set("a.c", "2"))
	require.NoError(t, c.Unlink("a.b"))
	assert.False(t, c.Has("a.b"))
	assert.Equal(t, "2", c.Get("a.c", ""))
	assert.Error(t, c.Unlink("a.b"))
	assert.Error(t, c.Unlink("missing.path"))
}

func TestLiveGetter(t *testing.T) {
	c := New()
	state := "Closed"
	c.SetFunc("state", func() string { return state })
	assert.Equal(t, "Closed", c.Get("state", ""))
	state = "Active"
	assert.Equal(t, "Active", c.Get("state", ""))
	assert.Equal(t, "Active", c.AsDict()["state"])
}

func TestAsDict(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("open.a", "1"))
	require.NoError(t, c.Set("open.b", "2"))
	require.NoError(t, c.Set("init", "null://"))
	c.Protect("empty")

	d := c.AsDict()
	assert.Equal(t, map[string]interface{}{"a": "1", "b": "2"}, d["open"])
	assert.Equal(t, "null://", d["init"])
	// a node without value renders as an empty map
	assert.Equal(t, map[string]interface{}{}, d["empty"])
}

func TestMount(t *testing.T) {
	inner := New()
	require.NoError(t, inner.Set("info.echo", "yes"))

	outer := New()
	outer.Mount("python", inner)
	assert.Equal(t, "yes", outer.Get("python.info.echo", ""))

	// the graft is shared, both sides observe mutations
	require.NoError(t, inner.Set("info.echo", "v2"))
	assert.Equal(t, "v2", outer.Get("python.info.echo", ""))

	sub := inner.Sub("info")
	require.NotNil(t, sub)
	outer.Mount("inner-info", sub)
	assert.Equal(t, "v2", outer.Get("inner-info.echo", ""))
}

func TestMountAdoptsHostLock(t *testing.T) {
	inner := New()
	require.NoError(t, inner.Set("info.echo", "yes"))
	outer := New()
	outer.Mount("python", inner)

	// one lock guards the whole merged graph, handles of either tree
	// included
	assert.Same(t, outer.n.mu, inner.n.mu)
	assert.Same(t, outer.n.mu, inner.Sub("info").n.mu)

	// both handles stay fully usable after the graft
	require.NoError(t, inner.Set("info.late", "1"))
	assert.Equal(t, "1", outer.Get("python.info.late", ""))
	require.NoError(t, outer.Internal().Set("python.info.host", "2"))
	assert.Equal(t, "2", inner.Get("info.host", ""))
}

func TestMerge(t *testing.T) {
	a := New()
	require.NoError(t, a.Set("x", "1"))
	b := New()
	require.NoError(t, b.Set("y.z", "2"))
	require.NoError(t, a.Merge(b))
	assert.Equal(t, "1", a.Get("x", ""))
	assert.Equal(t, "2", a.Get("y.z", ""))

	a.Protect("y")
	c := New()
	require.NoError(t, c.Set("y.z", "3"))
	assert.Error(t, a.Merge(c))
}

func TestKeysOrdered(t *testing.T) {
	c := New()
	require.NoError(t, c.Set("b", "1"))
	require.NoError(t, c.Set("a", "2"))
	require.NoError(t, c.Set("c", "3"))
	assert.Equal(t, []string{"b", "a", "c"}, c.Keys())
	require.NoError(t, c.Unlink("a"))
	assert.Equal(t, []string{"b", "c"}, c.Keys())
}
