// Package conversation describes the conversations a clockmail database
// offers and resolves their rosters.
//
// Every database has one group conversation with all registered agents.
// Configured groups add narrower group conversations, and every agent gets
// a direct (non-group) conversation.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/daviddao/clockmail/pkg/model"
)

// ErrMissingMember is returned when a roster names an agent that has no
// record in the directory.
var ErrMissingMember = errors.New("member has no agent record")

// Participant is one roster entry.
type Participant struct {
	ID   string
	Name string
}

// RosterFunc fetches the current roster.
type RosterFunc func(ctx context.Context) ([]Participant, error)

// Context is one conversation the UI can switch to.
type Context struct {
	Scope  string
	Group  bool
	Title  string
	Roster RosterFunc
}

// Names returns the display names of the current roster.
func (c Context) Names(ctx context.Context) ([]string, error) {
	if c.Roster == nil {
		return nil, nil
	}
	roster, err := c.Roster(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(roster))
	for i, p := range roster {
		names[i] = p.Name
	}
	return names, nil
}

// Directory lists registered agents. *store.Store satisfies it.
type Directory interface {
	ListAgents() ([]model.Agent, error)
}

// GroupDef is a configured group conversation.
type GroupDef struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

// Resolve maps member ids to participants using the directory records.
func Resolve(memberIDs []string, agents []model.Agent) ([]Participant, error) {
	byID := make(map[string]model.Agent, len(agents))
	for _, ag := range agents {
		byID[ag.ID] = ag
	}
	out := make([]Participant, 0, len(memberIDs))
	for _, id := range memberIDs {
		ag, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%q: %w", id, ErrMissingMember)
		}
		out = append(out, Participant{ID: ag.ID, Name: ag.ID})
	}
	return out, nil
}

// AllAgents is the roster of every registered agent except the excluded
// ids (the local sender).
func AllAgents(dir Directory, exclude ...string) RosterFunc {
	return func(context.Context) ([]Participant, error) {
		agents, err := dir.ListAgents()
		if err != nil {
			return nil, fmt.Errorf("list agents: %w", err)
		}
		out := make([]Participant, 0, len(agents))
		for _, ag := range agents {
			if slices.Contains(exclude, ag.ID) {
				continue
			}
			out = append(out, Participant{ID: ag.ID, Name: ag.ID})
		}
		return out, nil
	}
}

// Members is the roster of a configured group.
func Members(dir Directory, ids []string) RosterFunc {
	return func(context.Context) ([]Participant, error) {
		agents, err := dir.ListAgents()
		if err != nil {
			return nil, fmt.Errorf("list agents: %w", err)
		}
		return Resolve(ids, agents)
	}
}

// GroupScope is the scope id of the all-agents conversation of dbPath.
func GroupScope(dbPath string) string {
	base := strings.TrimSuffix(filepath.Base(dbPath), filepath.Ext(dbPath))
	return "group:" + base
}

// DirectScope is the scope id of the direct conversation with agent.
func DirectScope(agent string) string {
	return "dm:" + agent
}

// List returns the conversations of a database: the all-agents group, each
// configured group, then one direct conversation per agent other than self.
func List(dbPath, self string, dir Directory, groups []GroupDef, agents []model.Agent) []Context {
	out := []Context{{
		Scope:  GroupScope(dbPath),
		Group:  true,
		Title:  "all agents",
		Roster: AllAgents(dir, self),
	}}
	for _, g := range groups {
		out = append(out, Context{
			Scope:  "group:" + g.Name,
			Group:  true,
			Title:  g.Name,
			Roster: Members(dir, g.Members),
		})
	}
	for _, ag := range agents {
		if ag.ID == self {
			continue
		}
		out = append(out, Context{
			Scope: DirectScope(ag.ID),
			Title: "@" + ag.ID,
		})
	}
	return out
}

// Agent returns the peer of a direct conversation, or "".
func (c Context) Agent() string {
	if c.Group {
		return ""
	}
	agent, ok := strings.CutPrefix(c.Scope, "dm:")
	if !ok {
		return ""
	}
	return agent
}
