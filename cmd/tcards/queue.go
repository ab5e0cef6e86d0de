package main

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// opQueue runs controller transitions one at a time in the order they were
// enqueued. Bubbletea runs every Cmd on its own goroutine, so two Cmds
// returned from consecutive updates may start in either order; enqueueing
// from Update fixes the order, and the returned Cmd only waits for the
// result.
type opQueue struct {
	mu      sync.Mutex
	pending []queuedOp
	running bool
}

type queuedOp struct {
	fn   func() tea.Msg
	done chan tea.Msg
}

// enqueue schedules fn behind every op enqueued before it. The returned Cmd
// blocks until fn has run and yields its message.
func (q *opQueue) enqueue(fn func() tea.Msg) tea.Cmd {
	done := make(chan tea.Msg, 1)
	q.mu.Lock()
	q.pending = append(q.pending, queuedOp{fn: fn, done: done})
	if !q.running {
		q.running = true
		go q.drain()
	}
	q.mu.Unlock()
	return func() tea.Msg { return <-done }
}

// drain exits once the queue is empty; the next enqueue starts it again.
func (q *opQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		op := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		op.done <- op.fn()
	}
}
