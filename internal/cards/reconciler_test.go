package cards

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// names is a mutable name source shared between the test and the loop.
type names struct {
	mu    sync.Mutex
	list  []string
	err   error
	calls int
}

func (n *names) set(list ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list, n.err = list, nil
}

func (n *names) fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *names) fetch(context.Context) ([]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.err != nil {
		return nil, n.err
	}
	return append([]string(nil), n.list...), nil
}

func (n *names) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func TestTickScenario(t *testing.T) {
	src := &names{}
	row := NewRow()
	rec := &Reconciler{Names: src.fetch, Row: row}

	src.set("Bob", "Alice")
	p, err := rec.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob"}, p.Added)
	assert.Equal(t, []string{"Alice", "Bob"}, row.Identities())

	src.set("Bob", "Carol")
	p, err = rec.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Patch{Removed: []string{"Alice"}, Added: []string{"Carol"}}, p)
	assert.Equal(t, []string{"Bob", "Carol"}, row.Identities())
}

func TestTickErrorLeavesRowUnchanged(t *testing.T) {
	src := &names{}
	row := NewRow()
	rec := &Reconciler{Names: src.fetch, Row: row}

	src.set("Alice")
	_, err := rec.Tick(context.Background())
	require.NoError(t, err)

	src.fail(errors.New("roster unavailable"))
	_, err = rec.Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"Alice"}, row.Identities())
}

func TestTickRecoversPanic(t *testing.T) {
	row := NewRow()
	row.Insert("Alice")
	rec := &Reconciler{
		Names: func(context.Context) ([]string, error) { panic("missing member record") },
		Row:   row,
	}
	_, err := rec.Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"Alice"}, row.Identities())
}

func TestRunFirstTickIsImmediate(t *testing.T) {
	src := &names{}
	src.set("Alice")
	row := NewRow()
	changed := make(chan Patch, 1)
	rec := &Reconciler{
		Names:    src.fetch,
		Row:      row,
		Interval: time.Hour,
		OnChange: func(p Patch) { changed <- p },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		rec.Run(ctx, func() bool { return true })
	}()

	select {
	case p := <-changed:
		assert.Equal(t, []string{"Alice"}, p.Added)
	case <-time.After(2 * time.Second):
		t.Fatal("first tick did not run before the interval elapsed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel during the wait did not stop the loop")
	}
	assert.Equal(t, 1, src.callCount())
}

func TestRunStopsWhenInactive(t *testing.T) {
	src := &names{}
	src.set("Alice")
	var active atomic.Bool
	active.Store(true)
	rec := &Reconciler{Names: src.fetch, Row: NewRow(), Interval: 5 * time.Millisecond}

	done := make(chan struct{})
	go func() {
		defer close(done)
		rec.Run(context.Background(), active.Load)
	}()

	require.Eventually(t, func() bool { return src.callCount() >= 3 }, 2*time.Second, time.Millisecond)
	active.Store(false)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop kept running after active flag cleared")
	}
}

func TestRunSurvivesFailingTicks(t *testing.T) {
	src := &names{}
	src.fail(errors.New("boom"))
	row := NewRow()
	rec := &Reconciler{Names: src.fetch, Row: row, Interval: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		rec.Run(ctx, func() bool { return true })
	}()

	require.Eventually(t, func() bool { return src.callCount() >= 3 }, 2*time.Second, time.Millisecond)
	src.set("Bob")
	require.Eventually(t, func() bool { return row.Len() == 1 }, 2*time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestRunWakeTicksEarly(t *testing.T) {
	src := &names{}
	row := NewRow()
	wake := make(chan struct{}, 1)
	rec := &Reconciler{Names: src.fetch, Row: row, Interval: time.Hour, Wake: wake}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		rec.Run(ctx, func() bool { return true })
	}()

	require.Eventually(t, func() bool { return src.callCount() == 1 }, 2*time.Second, time.Millisecond)
	src.set("Alice")
	wake <- struct{}{}
	require.Eventually(t, func() bool { return row.Len() == 1 }, 2*time.Second, time.Millisecond)

	cancel()
	<-done
}
