package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/daviddao/clockmail/pkg/model"
	"github.com/daviddao/clockmail_cards/internal/cards"
	"github.com/daviddao/clockmail_cards/internal/conversation"
	"github.com/daviddao/clockmail_cards/internal/lifecycle"
)

// --- Styles ---

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1E1E2E")).
			Padding(0, 1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#6C7086")).
				Background(lipgloss.Color("#313244")).
				Padding(0, 1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C7086"))

	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAB387"))

	msgFromStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#89B4FA")).
			Bold(true)

	msgToStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6E3A1"))

	tooltipStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#313244"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8")).
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#1E1E2E"))
)

// Fixed rows: title, tabs, blank above the transcript; input and status
// below the card row.
const (
	headerLines = 3
	footerLines = 2
)

// --- View rendering ---

func (m uiModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderTitleBar())
	b.WriteRune('\n')
	b.WriteString(m.renderTabBar())
	b.WriteString("\n\n")

	// Transcript, with the tooltip drawn over its last lines.
	height := m.transcriptHeight()
	lines := m.transcriptLines()
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	for len(lines) < height {
		lines = append([]string{""}, lines...)
	}
	if tip := m.tooltipLines(); len(tip) > 0 {
		n := min(len(tip), height)
		copy(lines[height-n:], tip[len(tip)-n:])
	}
	b.WriteString(truncateLines(strings.Join(lines, "\n"), m.width))
	b.WriteRune('\n')

	b.WriteString(m.renderCards())
	b.WriteRune('\n')
	b.WriteString(m.input.View())
	b.WriteRune('\n')

	if m.showHelp {
		b.WriteString(m.help.View(keys))
	} else {
		b.WriteString(m.renderStatusBar())
	}
	return b.String()
}

func (m uiModel) transcriptHeight() int {
	return max(0, m.height-headerLines-cards.Height()-footerLines)
}

// cardsTop is the screen row the card row starts at.
func (m uiModel) cardsTop() int {
	return headerLines + m.transcriptHeight()
}

func (m uiModel) renderTitleBar() string {
	title := titleStyle.Render("tcards")
	agents, msgs := 0, 0
	if m.snap != nil {
		agents = m.snap.ActiveAgents + m.snap.StaleAgents
		msgs = len(m.snap.Messages)
	}
	state := lifecycle.Stopped
	if m.svc.ctrl != nil {
		state = m.svc.ctrl.State()
	}
	stats := dimStyle.Render(fmt.Sprintf("%d agents | %d messages | cards %s", agents, msgs, state))
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(title)-lipgloss.Width(stats)-2))
	return title + gap + stats
}

func (m uiModel) renderTabBar() string {
	var tabs []string
	for i, c := range m.convs {
		if i == m.active {
			tabs = append(tabs, tabActiveStyle.Render(c.Title))
		} else {
			tabs = append(tabs, tabInactiveStyle.Render(c.Title))
		}
	}
	return truncateLines(strings.Join(tabs, " "), m.width)
}

// transcriptLines renders the messages of the current conversation, oldest
// first, followed by local notes.
func (m uiModel) transcriptLines() []string {
	conv := m.current()
	var lines []string

	bodyIndent := "    "
	bodyWidth := max(20, m.width-len(bodyIndent)-1)
	for _, e := range m.messages(conv) {
		ts := dimStyle.Render(fmt.Sprintf("[L:%d]", e.LamportTS))
		lines = append(lines, fmt.Sprintf("%s %s -> %s", ts, msgFromStyle.Render(e.AgentID), msgToStyle.Render(e.Target)))
		for _, line := range wrapText(e.Body, bodyWidth) {
			lines = append(lines, bodyIndent+line)
		}
	}
	if len(lines) == 0 {
		lines = append(lines, dimStyle.Render("  (no messages)"))
	}
	for _, n := range m.notes[conv.Scope] {
		lines = append(lines, noteStyle.Render(n))
	}
	return lines
}

// messages returns the transcript of conv: everything for the all-agents
// group, traffic among members for a configured group, the peer's messages
// for a direct conversation.
func (m uiModel) messages(conv conversation.Context) []model.Event {
	if m.snap == nil {
		return nil
	}
	if agent := conv.Agent(); agent != "" {
		return m.snap.MessagesWith(agent)
	}
	for _, g := range m.svc.groups {
		if conv.Scope != "group:"+g.Name {
			continue
		}
		in := make(map[string]bool, len(g.Members))
		for _, id := range g.Members {
			in[id] = true
		}
		var out []model.Event
		for _, e := range m.snap.Messages {
			if in[e.AgentID] || in[e.Target] {
				out = append(out, e)
			}
		}
		return out
	}
	return m.snap.Messages
}

func (m uiModel) tooltipLines() []string {
	if m.tooltip == "" {
		return nil
	}
	lines := strings.Split(m.tooltip, "\n")
	for i, l := range lines {
		lines[i] = tooltipStyle.Render(" " + l + " ")
	}
	return lines
}

func (m uiModel) renderCards() string {
	h := cards.Height()
	out := ""
	if row := m.row(); row != nil {
		out = row.Render(m.width)
	}
	if out == "" {
		if m.current().Group {
			out = dimStyle.Render("  (trigger cards off: /tc-on to enable)")
		} else {
			out = dimStyle.Render("  (direct conversation: no trigger cards)")
		}
	}
	// Keep the row height fixed so mouse hit-testing lines up.
	n := strings.Count(out, "\n") + 1
	if n < h {
		out += strings.Repeat("\n", h-n)
	}
	return out
}

func (m uiModel) renderStatusBar() string {
	var left string
	switch {
	case m.toast != "" && m.toastErr:
		left = " " + errorStyle.Render(m.toast)
	case m.toast != "":
		left = " " + m.toast
	default:
		left = " tab: conversation | click: trigger | shift+click: unmute | alt+click: mute | f1: help"
	}
	ago := time.Since(m.lastRefresh).Truncate(time.Second)
	right := fmt.Sprintf("refreshed %s ago ", shortDuration(ago))
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right)))
	return statusBarStyle.Render(truncateLines(left+gap+right, m.width))
}

// --- Helpers ---

func truncateLines(content string, width int) string {
	if width <= 0 {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if lipgloss.Width(line) > width {
			lines[i] = ansi.Truncate(line, width, "")
		}
	}
	return strings.Join(lines, "\n")
}

// wrapText breaks s into lines of at most width characters, splitting on word
// boundaries where possible. If a single word exceeds width it is hard-split.
// Embedded newlines are respected; each paragraph is wrapped independently.
func wrapText(s string, width int) []string {
	if width <= 0 {
		width = 80
	}
	var lines []string
	for _, para := range strings.Split(s, "\n") {
		lines = append(lines, wrapParagraph(para, width)...)
	}
	return lines
}

// wrapParagraph wraps a single paragraph (no embedded newlines) to width.
func wrapParagraph(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	var cur strings.Builder
	for _, w := range words {
		for ansi.StringWidth(w) > width {
			if cur.Len() > 0 {
				lines = append(lines, cur.String())
				cur.Reset()
			}
			lines = append(lines, ansi.Cut(w, 0, width))
			w = ansi.Cut(w, width, ansi.StringWidth(w))
		}
		switch {
		case w == "":
		case cur.Len() == 0:
			cur.WriteString(w)
		case ansi.StringWidth(cur.String())+1+ansi.StringWidth(w) > width:
			lines = append(lines, cur.String())
			cur.Reset()
			cur.WriteString(w)
		default:
			cur.WriteByte(' ')
			cur.WriteString(w)
		}
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

func shortDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
