// Package dispatch resolves what a trigger card does when it is clicked or
// hovered.
//
// A click either runs a reply from the member set (for cards flagged "qr"),
// a reply from the action set named after the modifier code, or one of the
// built-in commands. Failures are reported to the user and never returned.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/daviddao/clockmail_cards/internal/identity"
)

var (
	// ErrSetNotFound is returned by an ActionSet for an unknown set name.
	ErrSetNotFound = errors.New("reply set not found")
	// ErrReplyNotFound is returned by an ActionSet for an unknown label.
	ErrReplyNotFound = errors.New("reply not found")
)

// Reply is one labeled entry of a reply set.
type Reply struct {
	Label   string `yaml:"label"`
	Title   string `yaml:"title,omitempty"`
	Message string `yaml:"message"`
}

// ActionSet is a library of named reply sets.
type ActionSet interface {
	List(ctx context.Context, set string) ([]string, error)
	Entry(ctx context.Context, set, label string) (Reply, error)
	Execute(ctx context.Context, set, label string, params map[string]string) error
}

// Commander runs one host command line such as "/trigger Alice".
type Commander interface {
	Execute(ctx context.Context, line string) error
}

// Notifier shows a transient message to the user.
type Notifier interface {
	Error(msg string)
}

// Refs names the configured reply sets. Empty means not configured.
type Refs struct {
	Actions string
	Members string
}

// Dispatcher resolves and runs card actions.
type Dispatcher struct {
	Actions  ActionSet
	Commands Commander
	Notifier Notifier
	Logger   *zap.Logger
}

func (d *Dispatcher) log() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Dispatcher) report(what string, err error) {
	d.log().Warn("card action failed", zap.String("action", what), zap.Error(err))
	if d.Notifier != nil {
		d.Notifier.Error(err.Error())
	}
}

// Activate runs the action bound to the card raw for the held modifiers.
func (d *Dispatcher) Activate(ctx context.Context, refs Refs, raw string, combo Combo) {
	id := identity.Parse(raw)
	code := combo.Code()

	if refs.Members != "" && id.Has(identity.FlagReply) {
		if err := d.execute(ctx, refs.Members, raw, nil); err != nil {
			d.report("member reply "+raw, err)
		}
		return
	}

	if refs.Actions != "" {
		labels, err := d.list(ctx, refs.Actions)
		if err != nil {
			d.report("list "+refs.Actions, err)
			return
		}
		switch {
		case slices.Contains(labels, code):
			params := map[string]string{"name": id.Base, "set": refs.Members}
			if err := d.execute(ctx, refs.Actions, code, params); err != nil {
				d.report("action reply "+code, err)
			}
		case refs.Members != "":
			if err := d.execute(ctx, refs.Members, id.Base, nil); err != nil {
				d.report("member reply "+id.Base, err)
			}
		}
		return
	}

	var cmd string
	switch code {
	case "":
		cmd = "/trigger " + id.Base
	case "s":
		cmd = "/enable " + id.Base
	case "a":
		cmd = "/disable " + id.Base
	default:
		return
	}
	if d.Commands == nil {
		return
	}
	if err := d.Commands.Execute(ctx, cmd); err != nil {
		d.report(cmd, err)
	}
}

// list treats a missing set as an empty one so resolution falls through.
func (d *Dispatcher) list(ctx context.Context, set string) ([]string, error) {
	if d.Actions == nil {
		return nil, nil
	}
	labels, err := d.Actions.List(ctx, set)
	if errors.Is(err, ErrSetNotFound) {
		d.log().Debug("reply set missing", zap.String("set", set))
		return nil, nil
	}
	return labels, err
}

func (d *Dispatcher) execute(ctx context.Context, set, label string, params map[string]string) error {
	if d.Actions == nil {
		return fmt.Errorf("reply %q: %w", set, ErrSetNotFound)
	}
	return d.Actions.Execute(ctx, set, label, params)
}

// Title returns the tooltip text for the card raw.
func (d *Dispatcher) Title(ctx context.Context, refs Refs, raw string) string {
	id := identity.Parse(raw)
	parts := []string{id.Base}

	switch {
	case refs.Members != "" && id.Has(identity.FlagReply):
		if d.Actions == nil {
			break
		}
		r, err := d.Actions.Entry(ctx, refs.Members, raw)
		if err != nil {
			d.report("title "+raw, err)
			break
		}
		if r.Title != "" {
			parts = append(parts, r.Title)
		} else {
			parts = append(parts, r.Message)
		}

	case refs.Actions != "":
		labels, err := d.list(ctx, refs.Actions)
		if err != nil {
			d.report("title "+refs.Actions, err)
			break
		}
		for _, label := range labels {
			r, err := d.Actions.Entry(ctx, refs.Actions, label)
			if err != nil {
				d.report("title "+label, err)
				continue
			}
			parts = append(parts, DescribeCode(label)+": "+r.Title)
		}

	default:
		parts = append(parts,
			"click: trigger",
			"shift + click: unmute",
			"alt + click: mute",
		)
	}

	return strings.Join(withRule(parts), "\n")
}

// withRule inserts a dash line after the first part, 1.2 times as wide as
// the widest part.
func withRule(parts []string) []string {
	widest := 0
	for _, p := range parts {
		widest = max(widest, utf8.RuneCountInString(p))
	}
	rule := strings.Repeat("-", widest*6/5)
	out := make([]string, 0, len(parts)+1)
	out = append(out, parts[0], rule)
	return append(out, parts[1:]...)
}
