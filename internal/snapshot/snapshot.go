// Package snapshot builds immutable conversation snapshots from the clockmail
// store.
//
// A DataSnapshot captures the registered agents and the recent message
// transcript at a point in time. Snapshots are rebuilt on each DB change and
// swapped into the UI model.
package snapshot

import (
	"time"

	"github.com/daviddao/clockmail/pkg/model"
	"github.com/daviddao/clockmail/pkg/store"
)

// MessageLimit bounds how many of the newest events a snapshot scans.
const MessageLimit = 500

// StaleAfter is how long an agent may stay silent before it counts as stale.
const StaleAfter = 10 * time.Minute

// DataSnapshot is an immutable view of one clockmail database.
type DataSnapshot struct {
	Agents   []model.Agent
	Messages []model.Event

	ActiveAgents int
	StaleAgents  int

	BuiltAt time.Time
}

// Build queries the store and returns a complete snapshot.
func Build(s *store.Store) (*DataSnapshot, error) {
	agents, err := s.ListAgents()
	if err != nil {
		return nil, err
	}

	// Anchor on MaxEventID so the window holds the newest events.
	maxID := s.MaxEventID()
	sinceID := maxID - int64(MessageLimit)
	if sinceID < 0 {
		sinceID = 0
	}
	events, err := s.ListEventsSinceID(sinceID, MessageLimit)
	if err != nil {
		return nil, err
	}

	var msgs []model.Event
	for _, e := range events {
		if e.Kind == model.EventMsg {
			msgs = append(msgs, e)
		}
	}

	var activeCount, staleCount int
	for _, ag := range agents {
		if time.Since(ag.LastSeen) > StaleAfter {
			staleCount++
		} else {
			activeCount++
		}
	}

	return &DataSnapshot{
		Agents:       agents,
		Messages:     msgs,
		ActiveAgents: activeCount,
		StaleAgents:  staleCount,
		BuiltAt:      time.Now(),
	}, nil
}

// AgentIDs returns the registered agent ids in store order.
func (d *DataSnapshot) AgentIDs() []string {
	out := make([]string, len(d.Agents))
	for i, ag := range d.Agents {
		out[i] = ag.ID
	}
	return out
}

// MessagesWith returns messages sent by or to agent. An empty agent matches
// every message.
func (d *DataSnapshot) MessagesWith(agent string) []model.Event {
	if agent == "" {
		return d.Messages
	}
	var out []model.Event
	for _, e := range d.Messages {
		if e.AgentID == agent || e.Target == agent {
			out = append(out, e)
		}
	}
	return out
}
