package snapshot

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/daviddao/clockmail/pkg/model"
	"github.com/daviddao/clockmail/pkg/store"
)

// newTestStore creates a temporary clockmail store for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "clockmail.db")
	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// makeEvent creates a model.Event for test insertion.
func makeEvent(agentID string, kind model.EventKind, target, body string, ts int64) *model.Event {
	return &model.Event{
		AgentID:   agentID,
		LamportTS: ts,
		Kind:      kind,
		Target:    target,
		Body:      body,
		CreatedAt: time.Now(),
	}
}

func TestBuildEmptyStore(t *testing.T) {
	s := newTestStore(t)

	snap, err := Build(s)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(snap.Agents) != 0 {
		t.Errorf("expected 0 agents, got %d", len(snap.Agents))
	}
	if len(snap.Messages) != 0 {
		t.Errorf("expected 0 messages, got %d", len(snap.Messages))
	}
	if snap.ActiveAgents != 0 || snap.StaleAgents != 0 {
		t.Errorf("expected no agents counted, got %d active %d stale", snap.ActiveAgents, snap.StaleAgents)
	}
	if snap.BuiltAt.IsZero() {
		t.Error("BuiltAt should not be zero")
	}
}

func TestBuildWithAgents(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"alice", "bob"} {
		if _, err := s.RegisterAgent(id); err != nil {
			t.Fatalf("RegisterAgent %s: %v", id, err)
		}
	}

	snap, err := Build(s)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(snap.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(snap.Agents))
	}
	if snap.ActiveAgents != 2 {
		t.Errorf("expected 2 active agents, got %d", snap.ActiveAgents)
	}
	ids := snap.AgentIDs()
	if len(ids) != 2 {
		t.Errorf("AgentIDs() = %v", ids)
	}
}

func TestBuildKeepsOnlyMessages(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"alice", "bob"} {
		if _, err := s.RegisterAgent(id); err != nil {
			t.Fatalf("RegisterAgent %s: %v", id, err)
		}
	}

	events := []*model.Event{
		makeEvent("alice", model.EventMsg, "bob", "hello", 1),
		makeEvent("alice", model.EventLockReq, "main.go", "", 2),
		makeEvent("alice", model.EventProgress, "", "", 3),
		makeEvent("bob", model.EventMsg, "alice", "hi back", 4),
	}
	for _, e := range events {
		if _, err := s.InsertEvent(e); err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
	}

	snap, err := Build(s)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(snap.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(snap.Messages))
	}
	for _, e := range snap.Messages {
		if e.Kind != model.EventMsg {
			t.Errorf("unexpected kind %q in messages", e.Kind)
		}
	}
}

func TestBuildFetchesNewestEvents(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.RegisterAgent("alice"); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	for i := 1; i <= 10; i++ {
		e := makeEvent("alice", model.EventMsg, "bob", fmt.Sprintf("msg-%d", i), int64(i))
		if _, err := s.InsertEvent(e); err != nil {
			t.Fatalf("InsertEvent %d: %v", i, err)
		}
	}

	snap, err := Build(s)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(snap.Messages) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(snap.Messages))
	}
	if last := snap.Messages[len(snap.Messages)-1]; last.LamportTS != 10 {
		t.Errorf("expected last message LamportTS=10, got %d", last.LamportTS)
	}
}

func TestBuildSnapshotIsImmutable(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.RegisterAgent("alice"); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	snap1, err := Build(s)
	if err != nil {
		t.Fatalf("Build 1: %v", err)
	}
	if _, err := s.RegisterAgent("bob"); err != nil {
		t.Fatalf("RegisterAgent bob: %v", err)
	}
	snap2, err := Build(s)
	if err != nil {
		t.Fatalf("Build 2: %v", err)
	}

	if len(snap1.Agents) != 1 {
		t.Errorf("snap1 should have 1 agent (immutable), got %d", len(snap1.Agents))
	}
	if len(snap2.Agents) != 2 {
		t.Errorf("snap2 should have 2 agents, got %d", len(snap2.Agents))
	}
}

func TestBuildClosedStoreReturnsError(t *testing.T) {
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "clockmail.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	s.Close()

	if _, err := Build(s); err == nil {
		t.Error("Build on closed store should return an error")
	}
}

func TestMessagesWith(t *testing.T) {
	now := time.Now()
	snap := &DataSnapshot{Messages: []model.Event{
		{AgentID: "alice", Target: "bob", Kind: model.EventMsg, Body: "1", CreatedAt: now},
		{AgentID: "carol", Target: "alice", Kind: model.EventMsg, Body: "2", CreatedAt: now},
		{AgentID: "bob", Target: "carol", Kind: model.EventMsg, Body: "3", CreatedAt: now},
	}}

	tests := []struct {
		agent string
		want  int
	}{
		{"", 3},
		{"alice", 2},
		{"bob", 2},
		{"dave", 0},
	}
	for _, tt := range tests {
		if got := len(snap.MessagesWith(tt.agent)); got != tt.want {
			t.Errorf("MessagesWith(%q) = %d messages, want %d", tt.agent, got, tt.want)
		}
	}
}
