// Package host runs the slash commands trigger cards fall back on when no
// action set is configured, against a clockmail store.
package host

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/daviddao/clockmail/pkg/model"
	"github.com/daviddao/clockmail/pkg/store"
	"go.uber.org/zap"
)

var (
	// ErrUnknownCommand is returned for a command the host does not know.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMuted is returned when triggering a muted agent.
	ErrMuted = errors.New("agent is muted")
)

// TriggerBody is the message body a trigger sends.
const TriggerBody = "your turn"

// Host executes commands as one sender.
type Host struct {
	store  *store.Store
	sender string
	log    *zap.Logger

	mu         sync.Mutex
	muted      map[string]bool
	registered bool

	// OnChange is called after a command changed host state or the store.
	OnChange func()
}

// New returns a host sending as sender.
func New(s *store.Store, sender string, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{store: s, sender: sender, log: log, muted: map[string]bool{}}
}

// Sender returns the agent id commands are sent as.
func (h *Host) Sender() string { return h.sender }

// Execute runs one command line.
func (h *Host) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]
	h.log.Debug("host command", zap.String("cmd", cmd), zap.Strings("args", args))

	var err error
	switch cmd {
	case "/trigger":
		err = h.trigger(ctx, args)
	case "/enable":
		err = h.setMuted(args, false)
	case "/disable":
		err = h.setMuted(args, true)
	case "/msg":
		err = h.msg(ctx, args)
	default:
		return fmt.Errorf("%s: %w", cmd, ErrUnknownCommand)
	}
	if err == nil && h.OnChange != nil {
		h.OnChange()
	}
	return err
}

func (h *Host) trigger(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: /trigger <agent>")
	}
	agent := args[0]
	if h.IsMuted(agent) {
		return fmt.Errorf("%s: %w", agent, ErrMuted)
	}
	return h.send(ctx, agent, TriggerBody)
}

func (h *Host) msg(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: /msg <agent> <text>")
	}
	return h.send(ctx, args[0], strings.Join(args[1:], " "))
}

func (h *Host) setMuted(args []string, muted bool) error {
	if len(args) != 1 {
		if muted {
			return errors.New("usage: /disable <agent>")
		}
		return errors.New("usage: /enable <agent>")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if muted {
		h.muted[args[0]] = true
	} else {
		delete(h.muted, args[0])
	}
	return nil
}

// IsMuted reports whether agent is muted.
func (h *Host) IsMuted(agent string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.muted[agent]
}

// Muted returns the muted agents, sorted.
func (h *Host) Muted() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.muted))
	for a := range h.muted {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// send inserts a message event from the sender, registering it first.
func (h *Host) send(ctx context.Context, target, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	needsRegister := !h.registered
	h.mu.Unlock()
	if needsRegister {
		if _, err := h.store.RegisterAgent(h.sender); err != nil {
			return fmt.Errorf("register %s: %w", h.sender, err)
		}
		h.mu.Lock()
		h.registered = true
		h.mu.Unlock()
	}

	e := &model.Event{
		AgentID:   h.sender,
		LamportTS: h.store.MaxEventID() + 1,
		Kind:      model.EventMsg,
		Target:    target,
		Body:      body,
		CreatedAt: time.Now(),
	}
	if _, err := h.store.InsertEvent(e); err != nil {
		return fmt.Errorf("send to %s: %w", target, err)
	}
	h.log.Info("message sent", zap.String("to", target), zap.String("body", body))
	return nil
}
