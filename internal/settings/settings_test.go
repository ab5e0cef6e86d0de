package settings

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func strp(s string) *string { return &s }

func TestApplyOverrides(t *testing.T) {
	s := Default().Apply(Directives{
		Actions:    strp("acts"),
		Members:    strp("mems"),
		MemberList: []string{"Alice", " Bob ", ""},
	})
	assert.True(t, s.Enabled)
	assert.Equal(t, "acts", s.ActionSet())
	assert.Equal(t, "mems", s.MemberSet())
	assert.Equal(t, []string{"Alice", "Bob"}, s.MemberList)

	// Nothing given, no reset: previous overrides stay.
	kept := s.Apply(Directives{})
	assert.Equal(t, "acts", kept.ActionSet())
	assert.Equal(t, []string{"Alice", "Bob"}, kept.MemberList)

	// Reset clears what is not given.
	reset := s.Apply(Directives{Reset: true, Members: strp("other")})
	assert.Nil(t, reset.Actions)
	assert.Equal(t, "other", reset.MemberSet())
	assert.Nil(t, reset.MemberList)
}

func TestApplyDropsSingleMemberList(t *testing.T) {
	s := Default().Apply(Directives{MemberList: []string{"Alice", ""}})
	assert.Nil(t, s.MemberList)
}

func TestApplyEnables(t *testing.T) {
	s := Settings{Enabled: false}
	assert.True(t, s.Apply(Directives{}).Enabled)
}

func TestCloneIsDeep(t *testing.T) {
	s := Settings{Actions: strp("a"), MemberList: []string{"x", "y"}}
	c := s.Clone()
	*c.Actions = "b"
	c.MemberList[0] = "z"
	assert.Equal(t, "a", *s.Actions)
	assert.Equal(t, "x", s.MemberList[0])
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	st := NewFileStore(path)
	ctx := context.Background()

	got, err := st.Load(ctx, "group:a")
	require.NoError(t, err)
	assert.Equal(t, Default(), got)

	want := Settings{Enabled: false, Actions: strp("acts"), MemberList: []string{"A", "B"}}
	require.NoError(t, st.Save(ctx, "group:a", want))
	require.NoError(t, st.Save(ctx, "group:b", Default()))

	got, err = NewFileStore(path).Load(ctx, "group:a")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scopes: [not, a, map"), 0o644))
	_, err := NewFileStore(path).Load(context.Background(), "x")
	assert.Error(t, err)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	got, err := st.Load(ctx, "group:a")
	require.NoError(t, err)
	assert.Equal(t, Default(), got)

	want := Settings{Enabled: true, Members: strp("mems")}
	require.NoError(t, st.Save(ctx, "group:a", want))
	want.Enabled = false
	require.NoError(t, st.Save(ctx, "group:a", want))

	got, err = st.Load(ctx, "group:a")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	st, err := NewRedisStore("redis://" + srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, srv
}

func TestRedisStoreRoundTrip(t *testing.T) {
	st, srv := newRedisStore(t)
	ctx := context.Background()

	got, err := st.Load(ctx, "group:a")
	require.NoError(t, err)
	assert.Equal(t, Default(), got)

	want := Settings{Enabled: true, Actions: strp("acts"), MemberList: []string{"Alice", "Bob"}}
	require.NoError(t, st.Save(ctx, "group:a", want))
	got, err = st.Load(ctx, "group:a")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, srv.Exists("tcards:settings:group:a"))

	want.Enabled = false
	require.NoError(t, st.Save(ctx, "group:a", want))
	got, err = st.Load(ctx, "group:a")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRedisStoreCorruptValue(t *testing.T) {
	st, srv := newRedisStore(t)
	require.NoError(t, srv.Set("tcards:settings:group:a", "{not json"))
	_, err := st.Load(context.Background(), "group:a")
	assert.Error(t, err)
}

func TestOpenRedisBackend(t *testing.T) {
	srv := miniredis.RunT(t)
	st, err := Open(Options{Backend: "redis", RedisURL: "redis://" + srv.Addr()})
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Save(context.Background(), "group:b", Default()))
	assert.True(t, srv.Exists("tcards:settings:group:b"))
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	srv := miniredis.NewMiniRedis()
	require.NoError(t, srv.Start())
	addr := srv.Addr()
	srv.Close()
	_, err := NewRedisStore("redis://" + addr)
	assert.Error(t, err)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(Options{Backend: "etcd"})
	assert.Error(t, err)
}

// countingStore records saves.
type countingStore struct {
	mu    sync.Mutex
	saves map[string][]Settings
}

func (c *countingStore) Load(context.Context, string) (Settings, error) { return Default(), nil }

func (c *countingStore) Save(_ context.Context, scope string, s Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saves == nil {
		c.saves = map[string][]Settings{}
	}
	c.saves[scope] = append(c.saves[scope], s)
	return nil
}

func (c *countingStore) Close() error { return nil }

func (c *countingStore) count(scope string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.saves[scope])
}

func TestDebouncedCoalesces(t *testing.T) {
	inner := &countingStore{}
	d := NewDebounced(inner, 20*time.Millisecond, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Save(ctx, "s", Settings{Enabled: i%2 == 0}))
	}
	got, err := d.Load(ctx, "s")
	require.NoError(t, err)
	assert.True(t, got.Enabled, "load must see the pending save")

	require.Eventually(t, func() bool { return inner.count("s") == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, d.Close())
	assert.Equal(t, 1, inner.count("s"))
}

func TestDebouncedFlush(t *testing.T) {
	inner := &countingStore{}
	d := NewDebounced(inner, time.Hour, nil)
	ctx := context.Background()

	require.NoError(t, d.Save(ctx, "a", Default()))
	require.NoError(t, d.Save(ctx, "b", Default()))
	require.NoError(t, d.Flush(ctx))

	assert.Equal(t, 1, inner.count("a"))
	assert.Equal(t, 1, inner.count("b"))
	require.NoError(t, d.Close())
}
