// Package lifecycle owns the trigger-card row of the current conversation:
// its settings, the reconciler loop and the start/stop transitions between
// them.
//
// A Controller is either Stopped (no loop, no cards) or Running (one loop
// patching a bound row). All transitions are serialized, so at most one loop
// is ever in flight, and Stop returns only after the loop has exited and
// the row has been cleared and detached.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/daviddao/clockmail_cards/internal/cards"
	"github.com/daviddao/clockmail_cards/internal/conversation"
	"github.com/daviddao/clockmail_cards/internal/dispatch"
	"github.com/daviddao/clockmail_cards/internal/settings"
)

// ErrNoGroup is returned by operations that need a group conversation.
var ErrNoGroup = errors.New("trigger cards need a group conversation")

// State is the lifecycle state of a Controller.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	}
	return "?"
}

// Options wires a Controller to its collaborators. Store and Surface are
// required; the rest may be nil.
type Options struct {
	Store      settings.Store
	Surface    cards.Surface
	Actions    dispatch.ActionSet
	Dispatcher *dispatch.Dispatcher
	Interval   time.Duration
	Logger     *zap.Logger

	// RowOptions are passed to every new row.
	RowOptions []cards.RowOption

	// OnChange is called from the loop goroutine after a tick changed the row.
	OnChange func(cards.Patch)
}

// Controller drives the trigger cards of one UI.
type Controller struct {
	opts Options
	log  *zap.Logger

	// op serializes transitions. It is held while waiting for a loop to exit,
	// so the loop itself must never take it.
	op sync.Mutex

	// mu guards the fields below. The loop reads them through it.
	mu       sync.Mutex
	conv     *conversation.Context
	settings *settings.Settings
	state    State
	row      *cards.Row

	active atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
	wake   chan struct{}
}

// New returns a stopped controller with no conversation.
func New(opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{opts: opts, log: log}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Settings returns a copy of the settings of the current conversation.
// ok is false when no group conversation is selected.
func (c *Controller) Settings() (s settings.Settings, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settings == nil {
		return settings.Settings{}, false
	}
	return c.settings.Clone(), true
}

// Conversation returns the current conversation, if any.
func (c *Controller) Conversation() (conversation.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conv == nil {
		return conversation.Context{}, false
	}
	return *c.conv, true
}

// Row returns the bound row while Running, or nil.
func (c *Controller) Row() *cards.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.row
}

// ConversationChanged switches to conv. A non-group conversation stops the
// cards and forgets the settings; a group conversation loads its settings
// and restarts or stops according to Enabled.
func (c *Controller) ConversationChanged(ctx context.Context, conv conversation.Context) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.stopLocked()
	c.mu.Lock()
	c.conv = &conv
	c.settings = nil
	c.mu.Unlock()

	if !conv.Group {
		c.log.Debug("non-group conversation, cards off", zap.String("scope", conv.Scope))
		return nil
	}

	s, err := c.opts.Store.Load(ctx, conv.Scope)
	if err != nil {
		c.log.Warn("loading settings failed, using defaults",
			zap.String("scope", conv.Scope), zap.Error(err))
		s = settings.Default()
	}
	c.mu.Lock()
	c.settings = &s
	c.mu.Unlock()

	if s.Enabled {
		c.startLocked()
	}
	return nil
}

// Configure merges d into the current settings, persists them and makes
// sure the cards are running. A running loop picks the new settings up on
// an immediate tick, so the row is patched rather than rebuilt.
func (c *Controller) Configure(ctx context.Context, d settings.Directives) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	if c.conv == nil || !c.conv.Group || c.settings == nil {
		c.mu.Unlock()
		return ErrNoGroup
	}
	next := c.settings.Apply(d)
	c.settings = &next
	scope := c.conv.Scope
	c.mu.Unlock()

	if d.MemberList != nil && len(next.MemberList) == 0 {
		c.log.Debug("member list of one or fewer names ignored",
			zap.Strings("members", d.MemberList))
	}
	c.persist(ctx, scope, next)

	if c.State() == Running {
		c.nudge()
		return nil
	}
	c.startLocked()
	return nil
}

// Disable turns the cards off for the current conversation and persists it.
func (c *Controller) Disable(ctx context.Context) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	if c.conv == nil || !c.conv.Group || c.settings == nil {
		c.mu.Unlock()
		return ErrNoGroup
	}
	next := c.settings.Clone()
	next.Enabled = false
	c.settings = &next
	scope := c.conv.Scope
	c.mu.Unlock()

	c.persist(ctx, scope, next)
	c.stopLocked()
	return nil
}

// Restart stops the cards and starts them again with a fresh row if the
// current settings are enabled.
func (c *Controller) Restart(context.Context) {
	c.op.Lock()
	defer c.op.Unlock()
	c.stopLocked()
	if c.enabled() {
		c.startLocked()
	}
}

// Start binds a new row and spawns the loop. It does nothing when Running
// or when no group conversation is selected.
func (c *Controller) Start() {
	c.op.Lock()
	defer c.op.Unlock()
	c.startLocked()
}

// Stop ends the loop, waits for it to exit, then clears and detaches the
// row. It does nothing when Stopped.
func (c *Controller) Stop() {
	c.op.Lock()
	defer c.op.Unlock()
	c.stopLocked()
}

func (c *Controller) startLocked() {
	c.mu.Lock()
	if c.state == Running || c.conv == nil || !c.conv.Group {
		c.mu.Unlock()
		return
	}
	row := cards.NewRow(c.opts.RowOptions...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	wake := make(chan struct{}, 1)
	c.row, c.cancel, c.done, c.wake = row, cancel, done, wake
	c.state = Running
	scope := c.conv.Scope
	c.mu.Unlock()

	row.Bind(c.opts.Surface)
	c.active.Store(true)

	rec := &cards.Reconciler{
		Names:    c.names,
		Row:      row,
		Interval: c.opts.Interval,
		Logger:   c.log.With(zap.String("scope", scope)),
		OnChange: c.opts.OnChange,
		Wake:     wake,
	}
	go func() {
		defer close(done)
		rec.Run(ctx, c.isActive)
	}()
	c.log.Debug("cards started", zap.String("scope", scope))
}

func (c *Controller) stopLocked() {
	c.mu.Lock()
	if c.state == Stopped {
		c.mu.Unlock()
		return
	}
	row, cancel, done := c.row, c.cancel, c.done
	c.mu.Unlock()

	c.active.Store(false)
	cancel()
	<-done
	row.Clear()

	c.mu.Lock()
	c.row, c.cancel, c.done, c.wake = nil, nil, nil, nil
	c.state = Stopped
	c.mu.Unlock()
	c.log.Debug("cards stopped")
}

func (c *Controller) nudge() {
	c.mu.Lock()
	wake := c.wake
	c.mu.Unlock()
	if wake == nil {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}

func (c *Controller) enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings != nil && c.settings.Enabled
}

func (c *Controller) isActive() bool {
	return c.active.Load() && c.enabled()
}

func (c *Controller) persist(ctx context.Context, scope string, s settings.Settings) {
	if err := c.opts.Store.Save(ctx, scope, s); err != nil {
		c.log.Warn("saving settings failed", zap.String("scope", scope), zap.Error(err))
	}
}

// Names returns what the next tick would render, unsorted.
func (c *Controller) Names(ctx context.Context) ([]string, error) {
	return c.names(ctx)
}

// names picks the name source for one tick: the explicit member list, then
// the labels of the member reply set, then the conversation roster.
func (c *Controller) names(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	var s settings.Settings
	if c.settings != nil {
		s = c.settings.Clone()
	}
	var conv conversation.Context
	if c.conv != nil {
		conv = *c.conv
	}
	c.mu.Unlock()

	if len(s.MemberList) > 0 {
		return s.MemberList, nil
	}
	if set := s.MemberSet(); set != "" && c.opts.Actions != nil {
		labels, err := c.opts.Actions.List(ctx, set)
		if errors.Is(err, dispatch.ErrSetNotFound) {
			return nil, nil
		}
		return labels, err
	}
	return conv.Names(ctx)
}

func (c *Controller) refs() (dispatch.Refs, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settings == nil {
		return dispatch.Refs{}, false
	}
	return dispatch.Refs{
		Actions: c.settings.ActionSet(),
		Members: c.settings.MemberSet(),
	}, true
}

// Activate dispatches a click on the card raw with the current settings.
func (c *Controller) Activate(ctx context.Context, raw string, combo dispatch.Combo) {
	refs, ok := c.refs()
	if !ok || c.opts.Dispatcher == nil {
		return
	}
	c.opts.Dispatcher.Activate(ctx, refs, raw, combo)
}

// Title returns the hover text of the card raw.
func (c *Controller) Title(ctx context.Context, raw string) string {
	refs, ok := c.refs()
	if !ok || c.opts.Dispatcher == nil {
		return ""
	}
	return c.opts.Dispatcher.Title(ctx, refs, raw)
}
