// Package replyset loads named reply sets from a YAML library file.
//
// A reply set is an ordered list of labeled replies. Replies are host
// command scripts; running one substitutes {{arg::key}} placeholders and
// executes each non-empty line through a dispatch.Commander.
//
//	sets:
//	  - name: actions
//	    replies:
//	      - label: ""
//	        title: trigger
//	        message: /trigger {{arg::name}}
package replyset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/daviddao/clockmail_cards/internal/dispatch"
)

// Set is one named reply set.
type Set struct {
	Name    string           `yaml:"name"`
	Replies []dispatch.Reply `yaml:"replies"`
}

type libraryFile struct {
	Sets []Set `yaml:"sets"`
}

// Library is an in-memory copy of a reply set file. It implements
// dispatch.ActionSet.
type Library struct {
	path     string
	commands dispatch.Commander

	mu   sync.RWMutex
	sets map[string]Set
}

// Load reads path. A missing file yields an empty library so sets can be
// added later and picked up by Reload.
func Load(path string, commands dispatch.Commander) (*Library, error) {
	l := &Library{path: path, commands: commands, sets: map[string]Set{}}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// New returns a library holding sets, not backed by a file.
func New(commands dispatch.Commander, sets ...Set) *Library {
	l := &Library{commands: commands, sets: make(map[string]Set, len(sets))}
	for _, s := range sets {
		l.sets[s.Name] = s
	}
	return l
}

// Path returns the backing file, or "" for an in-memory library.
func (l *Library) Path() string { return l.path }

// Reload re-reads the backing file.
func (l *Library) Reload() error {
	if l.path == "" {
		return nil
	}
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.replace(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read reply sets %s: %w", l.path, err)
	}
	var f libraryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse reply sets %s: %w", l.path, err)
	}
	l.replace(f.Sets)
	return nil
}

func (l *Library) replace(sets []Set) {
	m := make(map[string]Set, len(sets))
	for _, s := range sets {
		m[s.Name] = s
	}
	l.mu.Lock()
	l.sets = m
	l.mu.Unlock()
}

// Names lists the set names in no particular order.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.sets))
	for name := range l.sets {
		out = append(out, name)
	}
	return out
}

func (l *Library) set(name string) (Set, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.sets[name]
	if !ok {
		return Set{}, fmt.Errorf("%q: %w", name, dispatch.ErrSetNotFound)
	}
	return s, nil
}

// List returns the labels of set in file order.
func (l *Library) List(_ context.Context, set string) ([]string, error) {
	s, err := l.set(set)
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(s.Replies))
	for i, r := range s.Replies {
		labels[i] = r.Label
	}
	return labels, nil
}

// Entry returns the first reply of set labeled label.
func (l *Library) Entry(_ context.Context, set, label string) (dispatch.Reply, error) {
	s, err := l.set(set)
	if err != nil {
		return dispatch.Reply{}, err
	}
	for _, r := range s.Replies {
		if r.Label == label {
			return r, nil
		}
	}
	return dispatch.Reply{}, fmt.Errorf("%q in %q: %w", label, set, dispatch.ErrReplyNotFound)
}

// Execute runs the reply's message line by line, stopping at the first
// failing command.
func (l *Library) Execute(ctx context.Context, set, label string, params map[string]string) error {
	r, err := l.Entry(ctx, set, label)
	if err != nil {
		return err
	}
	if l.commands == nil {
		return fmt.Errorf("reply %q: no command runner", label)
	}
	for _, line := range strings.Split(Expand(r.Message, params), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := l.commands.Execute(ctx, line); err != nil {
			return fmt.Errorf("reply %q: %w", label, err)
		}
	}
	return nil
}

var argPattern = regexp.MustCompile(`\{\{\s*arg::([^}]*)\}\}`)

// Expand replaces {{arg::key}} with params[key]. Unknown keys become empty.
func Expand(message string, params map[string]string) string {
	return argPattern.ReplaceAllStringFunc(message, func(m string) string {
		key := argPattern.FindStringSubmatch(m)[1]
		return params[strings.TrimSpace(key)]
	})
}
