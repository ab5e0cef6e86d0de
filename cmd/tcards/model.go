package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/daviddao/clockmail/pkg/model"
	"github.com/daviddao/clockmail/pkg/store"
	"github.com/daviddao/clockmail_cards/internal/cards"
	"github.com/daviddao/clockmail_cards/internal/conversation"
	"github.com/daviddao/clockmail_cards/internal/dispatch"
	"github.com/daviddao/clockmail_cards/internal/lifecycle"
	"github.com/daviddao/clockmail_cards/internal/replyset"
	"github.com/daviddao/clockmail_cards/internal/snapshot"
)

// toastTTL is how long a status bar message stays up.
const toastTTL = 4 * time.Second

// scrollStep is how many columns one wheel notch scrolls the card row.
const scrollStep = 4

// --- Messages ---

type dbChangedMsg struct{}

type replySetsChangedMsg struct{}

type cardsChangedMsg struct{}

type snapshotReadyMsg struct {
	snap *snapshot.DataSnapshot
	err  error
}

type tickMsg struct{}

type toastMsg struct {
	text string
	err  bool
}

type toastExpiredMsg struct{ at time.Time }

// opDoneMsg reports the end of a controller or host operation that ran off
// the UI goroutine.
type opDoneMsg struct {
	note string
	err  error
}

type tooltipMsg struct {
	identity string
	text     string
}

// --- Key bindings ---

type keyMap struct {
	Quit       key.Binding
	Next       key.Binding
	Prev       key.Binding
	Refresh    key.Binding
	Send       key.Binding
	Esc        key.Binding
	Help       key.Binding
	CardsLeft  key.Binding
	CardsRight key.Binding
}

var keys = keyMap{
	Quit:       key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	Next:       key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next conversation")),
	Prev:       key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous conversation")),
	Refresh:    key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "refresh")),
	Send:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	Esc:        key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear")),
	Help:       key.NewBinding(key.WithKeys("f1"), key.WithHelp("f1", "help")),
	CardsLeft:  key.NewBinding(key.WithKeys("ctrl+left"), key.WithHelp("ctrl+←", "scroll cards")),
	CardsRight: key.NewBinding(key.WithKeys("ctrl+right"), key.WithHelp("ctrl+→", "scroll cards")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Send, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Prev, k.Refresh, k.Send},
		{k.CardsLeft, k.CardsRight, k.Esc, k.Help, k.Quit},
	}
}

// --- Model ---

// services are the collaborators the model drives. store may be nil in
// tests, which disables snapshot refreshes.
type services struct {
	store    *store.Store
	dbPath   string
	self     string
	groups   []conversation.GroupDef
	ctrl     *lifecycle.Controller
	surface  *cardSurface
	commands dispatch.Commander
	muted    func() []string
	replies  *replyset.Library
}

type uiModel struct {
	svc  services
	snap *snapshot.DataSnapshot

	// ops orders controller transitions across Cmd goroutines.
	ops *opQueue

	convs  []conversation.Context
	active int

	width  int
	height int

	input    textinput.Model
	help     help.Model
	showHelp bool

	hover   string
	tooltip string

	toast    string
	toastErr bool
	toastAt  time.Time

	// notes are local system lines appended to the transcript, per scope.
	notes map[string][]string

	lastRefresh time.Time
}

func newModel(svc services, snap *snapshot.DataSnapshot, scope string) uiModel {
	in := textinput.New()
	in.Placeholder = "message, /msg <agent> <text>, /tc-on, /tc-off, /tc?"
	in.Prompt = "› "
	in.Focus()

	m := uiModel{
		svc:         svc,
		snap:        snap,
		ops:         &opQueue{},
		input:       in,
		help:        help.New(),
		notes:       map[string][]string{},
		lastRefresh: time.Now(),
	}
	m.convs = m.listConversations(snap)
	m.active = pickConversation(m.convs, scope)
	return m
}

func (m uiModel) listConversations(snap *snapshot.DataSnapshot) []conversation.Context {
	var agents []model.Agent
	if snap != nil {
		agents = snap.Agents
	}
	var dir conversation.Directory
	if m.svc.store != nil {
		dir = m.svc.store
	} else {
		dir = snapshotDirectory{snap}
	}
	return conversation.List(m.svc.dbPath, m.svc.self, dir, m.svc.groups, agents)
}

// snapshotDirectory serves rosters from a snapshot when there is no store.
type snapshotDirectory struct{ snap *snapshot.DataSnapshot }

func (d snapshotDirectory) ListAgents() ([]model.Agent, error) {
	if d.snap == nil {
		return nil, nil
	}
	return d.snap.Agents, nil
}

// pickConversation returns the index of scope in convs, or 0.
func pickConversation(convs []conversation.Context, scope string) int {
	for i, c := range convs {
		if c.Scope == scope {
			return i
		}
	}
	return 0
}

func (m uiModel) current() conversation.Context {
	return m.convs[m.active]
}

func (m uiModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.switchConversation(),
		tickEvery(),
	)
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKey(msg)

	case tea.MouseMsg:
		return m.updateMouse(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.input.Width = max(10, msg.Width-4)

	case dbChangedMsg:
		return m, m.refreshSnapshot()

	case snapshotReadyMsg:
		if msg.err != nil || msg.snap == nil {
			return m, nil
		}
		scope := m.current().Scope
		m.snap = msg.snap
		m.lastRefresh = time.Now()
		m.convs = m.listConversations(msg.snap)
		next := pickConversation(m.convs, scope)
		m.syncMuted()
		if m.convs[next].Scope != scope {
			// The conversation went away (agent removed); fall back.
			m.active = next
			return m, m.switchConversation()
		}
		m.active = next

	case replySetsChangedMsg:
		return m, m.reloadReplies()

	case cardsChangedMsg:
		m.syncMuted()
		if m.svc.surface == nil || m.svc.surface.Row() == nil {
			m.hover, m.tooltip = "", ""
		}

	case tooltipMsg:
		if msg.identity == m.hover {
			m.tooltip = msg.text
		}

	case toastMsg:
		m.toast, m.toastErr, m.toastAt = msg.text, msg.err, time.Now()
		at := m.toastAt
		return m, tea.Tick(toastTTL, func(time.Time) tea.Msg { return toastExpiredMsg{at: at} })

	case toastExpiredMsg:
		if msg.at.Equal(m.toastAt) {
			m.toast = ""
		}

	case opDoneMsg:
		if msg.note != "" {
			scope := m.current().Scope
			m.notes[scope] = append(m.notes[scope], strings.Split(msg.note, "\n")...)
		}
		if msg.err != nil {
			return m.Update(toastMsg{text: msg.err.Error(), err: true})
		}

	case tickMsg:
		return m, tickEvery()
	}

	return m, nil
}

func (m uiModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Next):
		m.active = (m.active + 1) % len(m.convs)
		m.hover, m.tooltip = "", ""
		return m, m.switchConversation()

	case key.Matches(msg, keys.Prev):
		m.active = (m.active - 1 + len(m.convs)) % len(m.convs)
		m.hover, m.tooltip = "", ""
		return m, m.switchConversation()

	case key.Matches(msg, keys.Refresh):
		return m, tea.Batch(m.refreshSnapshot(), m.reloadReplies())

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, keys.Esc):
		m.input.SetValue("")
		m.hover, m.tooltip, m.toast = "", "", ""
		m.showHelp = false
		return m, nil

	case key.Matches(msg, keys.CardsLeft):
		m.scrollCards(-scrollStep)
		return m, nil

	case key.Matches(msg, keys.CardsRight):
		m.scrollCards(scrollStep)
		return m, nil

	case key.Matches(msg, keys.Send):
		line := strings.TrimSpace(m.input.Value())
		m.input.SetValue("")
		if line == "" {
			return m, nil
		}
		return m, m.submit(line)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m uiModel) updateMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	row := m.row()
	top := m.cardsTop()
	onRow := row != nil && msg.Y >= top && msg.Y < top+cards.Height()
	if !onRow {
		if msg.Action == tea.MouseActionMotion {
			m.hover, m.tooltip = "", ""
		}
		return m, nil
	}

	switch {
	case msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelLeft:
		row.Scroll(-scrollStep)
		return m, nil
	case msg.Button == tea.MouseButtonWheelDown || msg.Button == tea.MouseButtonWheelRight:
		row.Scroll(scrollStep)
		return m, nil
	}

	id, ok := row.CardAt(msg.X)
	switch {
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		if !ok {
			return m, nil
		}
		combo := dispatch.Combo{Ctrl: msg.Ctrl, Shift: msg.Shift, Alt: msg.Alt}
		return m, m.activate(id, combo)

	case msg.Action == tea.MouseActionMotion:
		if !ok {
			m.hover, m.tooltip = "", ""
			return m, nil
		}
		if id == m.hover {
			return m, nil
		}
		m.hover, m.tooltip = id, ""
		return m, m.fetchTooltip(id)
	}
	return m, nil
}

func (m uiModel) row() *cards.Row {
	if m.svc.surface == nil {
		return nil
	}
	return m.svc.surface.Row()
}

func (m uiModel) scrollCards(delta int) {
	if row := m.row(); row != nil {
		row.Scroll(delta)
	}
}

func (m uiModel) syncMuted() {
	if row := m.row(); row != nil && m.svc.muted != nil {
		row.SetMuted(m.svc.muted())
	}
}

// --- Commands run off the UI goroutine ---

func (m uiModel) refreshSnapshot() tea.Cmd {
	s := m.svc.store
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		snap, err := snapshot.Build(s)
		return snapshotReadyMsg{snap: snap, err: err}
	}
}

func (m uiModel) reloadReplies() tea.Cmd {
	lib := m.svc.replies
	if lib == nil {
		return nil
	}
	return func() tea.Msg {
		if err := lib.Reload(); err != nil {
			return opDoneMsg{err: err}
		}
		return opDoneMsg{}
	}
}

func (m uiModel) switchConversation() tea.Cmd {
	ctrl, conv := m.svc.ctrl, m.current()
	if ctrl == nil {
		return nil
	}
	return m.ops.enqueue(func() tea.Msg {
		return opDoneMsg{err: ctrl.ConversationChanged(context.Background(), conv)}
	})
}

func (m uiModel) activate(id string, combo dispatch.Combo) tea.Cmd {
	ctrl := m.svc.ctrl
	return func() tea.Msg {
		ctrl.Activate(context.Background(), id, combo)
		return nil
	}
}

func (m uiModel) fetchTooltip(id string) tea.Cmd {
	ctrl := m.svc.ctrl
	return func() tea.Msg {
		return tooltipMsg{identity: id, text: ctrl.Title(context.Background(), id)}
	}
}

// submit runs one line typed into the input.
func (m uiModel) submit(line string) tea.Cmd {
	ctrl, commands, conv := m.svc.ctrl, m.svc.commands, m.current()

	cmd, err := parseCardCommand(line)
	if err != nil {
		return func() tea.Msg { return opDoneMsg{err: err} }
	}
	switch cmd.kind {
	case cardsHelp:
		return func() tea.Msg { return opDoneMsg{note: helpText} }
	case cardsOn:
		return m.ops.enqueue(func() tea.Msg {
			err := ctrl.Configure(context.Background(), cmd.directives)
			if errors.Is(err, lifecycle.ErrNoGroup) {
				err = fmt.Errorf("/tc-on: %w", err)
			}
			return opDoneMsg{err: err}
		})
	case cardsOff:
		return m.ops.enqueue(func() tea.Msg {
			err := ctrl.Disable(context.Background())
			if errors.Is(err, lifecycle.ErrNoGroup) {
				err = fmt.Errorf("/tc-off: %w", err)
			}
			return opDoneMsg{err: err}
		})
	}

	if commands == nil {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		agent := conv.Agent()
		if agent == "" {
			return func() tea.Msg {
				return opDoneMsg{err: errors.New("plain text goes to a direct conversation; use /msg <agent> <text> here")}
			}
		}
		line = "/msg " + agent + " " + line
	}
	return func() tea.Msg {
		return opDoneMsg{err: commands.Execute(context.Background(), line)}
	}
}
