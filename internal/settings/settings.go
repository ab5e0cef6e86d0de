// Package settings persists per-conversation trigger card settings.
//
// Settings are a small blob keyed by conversation scope. Backends store the
// blob in a YAML file, a SQLite table or Redis; Debounced coalesces the
// frequent saves the UI produces.
package settings

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Settings is the persisted state of one conversation.
type Settings struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	Actions    *string  `json:"actions,omitempty" yaml:"actions,omitempty"`
	Members    *string  `json:"members,omitempty" yaml:"members,omitempty"`
	MemberList []string `json:"member_list,omitempty" yaml:"member_list,omitempty"`
}

// Default is what a conversation without saved settings gets.
func Default() Settings {
	return Settings{Enabled: true}
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	if s.Actions != nil {
		v := *s.Actions
		out.Actions = &v
	}
	if s.Members != nil {
		v := *s.Members
		out.Members = &v
	}
	out.MemberList = slices.Clone(s.MemberList)
	return out
}

// ActionSet returns the configured action set name, or "".
func (s Settings) ActionSet() string {
	if s.Actions == nil {
		return ""
	}
	return *s.Actions
}

// MemberSet returns the configured member set name, or "".
func (s Settings) MemberSet() string {
	if s.Members == nil {
		return ""
	}
	return *s.Members
}

// Directives is one enable request: new overrides plus an optional reset.
type Directives struct {
	Actions    *string
	Members    *string
	MemberList []string
	Reset      bool
}

// Apply merges d into s. Given values win; Reset clears overrides that d
// does not set. A member list with fewer than two names is dropped. The
// result is always enabled.
func (s Settings) Apply(d Directives) Settings {
	out := s.Clone()
	switch {
	case d.Actions != nil:
		v := *d.Actions
		out.Actions = &v
	case d.Reset:
		out.Actions = nil
	}
	switch {
	case d.Members != nil:
		v := *d.Members
		out.Members = &v
	case d.Reset:
		out.Members = nil
	}

	list := make([]string, 0, len(d.MemberList))
	for _, n := range d.MemberList {
		if n = strings.TrimSpace(n); n != "" {
			list = append(list, n)
		}
	}
	switch {
	case len(list) > 0:
		out.MemberList = list
	case d.Reset:
		out.MemberList = nil
	}
	// One name is not a list; the roster is used instead.
	if len(out.MemberList) <= 1 {
		out.MemberList = nil
	}
	out.Enabled = true
	return out
}

// Store loads and saves settings by conversation scope. Load of an unknown
// scope returns Default().
type Store interface {
	Load(ctx context.Context, scope string) (Settings, error)
	Save(ctx context.Context, scope string, s Settings) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend  string // file, sqlite or redis
	Path     string
	RedisURL string
}

// Open returns the backend named by opts.Backend.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "file", "yaml":
		return NewFileStore(opts.Path), nil
	case "sqlite":
		return NewSQLiteStore(opts.Path)
	case "redis":
		return NewRedisStore(opts.RedisURL)
	default:
		return nil, fmt.Errorf("unknown settings backend %q (valid: file, sqlite, redis)", opts.Backend)
	}
}
