// Package cards keeps the trigger-card row in sync with the participants of
// a conversation.
//
// A Row owns the rendered cards in collation order. A Reconciler polls a name
// source and patches the Row with the difference every tick. Rendering and
// hit-testing are done by the Row so the terminal model only forwards input.
package cards

import (
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/text/language"

	"github.com/daviddao/clockmail_cards/internal/identity"
)

// Surface hosts a bound Row. The terminal model is the only production
// Surface; Mount and Unmount are called without Row locks held.
type Surface interface {
	Mount(r *Row)
	Unmount(r *Row)
}

// Card is one rendered participant.
type Card struct {
	Identity string
	ID       identity.ID
}

// Label is the text shown on the card.
func (c Card) Label() string {
	if c.ID.Has(identity.FlagReply) {
		return c.ID.Base + " ↩"
	}
	return c.ID.Base
}

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7C3AED")).
			Foreground(lipgloss.Color("#CDD6F4")).
			Padding(0, 1)

	mutedCardStyle = cardStyle.
			BorderForeground(lipgloss.Color("#313244")).
			Foreground(lipgloss.Color("#6C7086"))
)

// cardGap is the number of blank columns between two cards.
const cardGap = 1

// Row is the live, sorted collection of cards.
type Row struct {
	mu      sync.Mutex
	order   *order
	cards   []Card
	surface Surface

	muted     map[string]bool
	offset    int
	lastWidth int
}

// RowOption configures a Row.
type RowOption func(*Row)

// WithLanguage sets the collation language. The default is the root locale.
func WithLanguage(tag language.Tag) RowOption {
	return func(r *Row) { r.order = newOrder(tag) }
}

// NewRow returns an empty, unbound row.
func NewRow(opts ...RowOption) *Row {
	r := &Row{order: newOrder(language.Und), muted: map[string]bool{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Insert adds a card at its sorted position. Inserting an identity that is
// already rendered does nothing.
func (r *Row) Insert(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(id)
}

// Remove detaches the card for id. Absent identities are ignored.
func (r *Row) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
}

// Apply runs a whole patch under one lock, removals first.
func (r *Row) Apply(p Patch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyLocked(p)
}

// Sync diffs names against the rendered set and applies the result in one
// critical section. The applied patch is returned.
func (r *Row) Sync(names []string) Patch {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := Diff(r.identitiesLocked(), names)
	r.applyLocked(p)
	return p
}

func (r *Row) applyLocked(p Patch) {
	for _, id := range p.Removed {
		r.removeLocked(id)
	}
	for _, id := range p.Added {
		r.insertLocked(id)
	}
	r.clampLocked()
}

// search returns the index of the first card not sorting before id and
// whether that card is id itself.
func (r *Row) search(id string) (int, bool) {
	return slices.BinarySearchFunc(r.cards, id, func(c Card, target string) int {
		return r.order.compare(c.Identity, target)
	})
}

func (r *Row) insertLocked(id string) {
	i, found := r.search(id)
	if found {
		return
	}
	r.cards = slices.Insert(r.cards, i, Card{Identity: id, ID: identity.Parse(id)})
}

func (r *Row) removeLocked(id string) {
	i, found := r.search(id)
	if !found {
		return
	}
	r.cards = slices.Delete(r.cards, i, i+1)
}

// Clear removes every card and detaches the row from its surface.
func (r *Row) Clear() {
	r.mu.Lock()
	r.cards = nil
	r.offset = 0
	r.mu.Unlock()
	r.Unbind()
}

// Bind attaches the row to s, replacing any previous surface.
func (r *Row) Bind(s Surface) {
	r.mu.Lock()
	prev := r.surface
	r.surface = s
	r.mu.Unlock()
	if prev != nil && prev != s {
		prev.Unmount(r)
	}
	if s != nil {
		s.Mount(r)
	}
}

// Unbind detaches the row from its surface, if any.
func (r *Row) Unbind() {
	r.mu.Lock()
	prev := r.surface
	r.surface = nil
	r.mu.Unlock()
	if prev != nil {
		prev.Unmount(r)
	}
}

// Bound reports whether the row is attached to a surface.
func (r *Row) Bound() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.surface != nil
}

// Identities returns the rendered set in display order.
func (r *Row) Identities() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identitiesLocked()
}

func (r *Row) identitiesLocked() []string {
	out := make([]string, len(r.cards))
	for i, c := range r.cards {
		out[i] = c.Identity
	}
	return out
}

// Len returns the number of cards.
func (r *Row) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cards)
}

// SetMuted marks base names whose cards render dimmed.
func (r *Row) SetMuted(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted = make(map[string]bool, len(names))
	for _, n := range names {
		r.muted[n] = true
	}
}

// Scroll shifts the horizontal offset by delta columns.
func (r *Row) Scroll(delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offset += delta
	r.clampLocked()
}

// Offset returns the horizontal scroll offset in columns.
func (r *Row) Offset() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offset
}

func (r *Row) clampLocked() {
	limit := r.totalWidthLocked()
	if r.lastWidth > 0 {
		limit -= r.lastWidth
	}
	r.offset = min(r.offset, limit)
	r.offset = max(r.offset, 0)
}

type span struct {
	start, end int
	identity   string
}

func (r *Row) styleFor(c Card) lipgloss.Style {
	if r.muted[c.ID.Base] {
		return mutedCardStyle
	}
	return cardStyle
}

func (r *Row) layoutLocked() []span {
	spans := make([]span, 0, len(r.cards))
	x := 0
	for _, c := range r.cards {
		w := lipgloss.Width(r.styleFor(c).Render(c.Label()))
		spans = append(spans, span{start: x, end: x + w, identity: c.Identity})
		x += w + cardGap
	}
	return spans
}

func (r *Row) totalWidthLocked() int {
	spans := r.layoutLocked()
	if len(spans) == 0 {
		return 0
	}
	return spans[len(spans)-1].end
}

// Render draws the visible window of the row, width columns wide.
func (r *Row) Render(width int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastWidth = width
	r.clampLocked()
	if len(r.cards) == 0 {
		return ""
	}

	blocks := make([]string, 0, 2*len(r.cards))
	gap := strings.Repeat(" ", cardGap)
	for i, c := range r.cards {
		if i > 0 {
			blocks = append(blocks, gap)
		}
		blocks = append(blocks, r.styleFor(c).Render(c.Label()))
	}
	joined := lipgloss.JoinHorizontal(lipgloss.Top, blocks...)
	if width <= 0 {
		return joined
	}

	lines := strings.Split(joined, "\n")
	for i, line := range lines {
		lines[i] = ansi.Cut(line, r.offset, r.offset+width)
	}
	return strings.Join(lines, "\n")
}

// Height is the number of terminal lines a rendered card occupies.
func Height() int {
	return lipgloss.Height(cardStyle.Render("x"))
}

// CardAt returns the identity of the card under visible column x.
func (r *Row) CardAt(x int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if x < 0 {
		return "", false
	}
	col := x + r.offset
	for _, s := range r.layoutLocked() {
		if col >= s.start && col < s.end {
			return s.identity, true
		}
	}
	return "", false
}
