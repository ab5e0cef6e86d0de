package main

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/daviddao/clockmail_cards/internal/cards"
)

// relay forwards messages from background goroutines to the running
// program. Messages sent before a program is attached are dropped.
type relay struct {
	mu sync.Mutex
	p  *tea.Program
}

func (r *relay) attach(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = p
}

func (r *relay) send(msg tea.Msg) {
	if r == nil {
		return
	}
	r.mu.Lock()
	p := r.p
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// cardSurface is the slot of the UI the card row is drawn into.
type cardSurface struct {
	relay *relay

	mu  sync.Mutex
	row *cards.Row
}

func (s *cardSurface) Mount(r *cards.Row) {
	s.mu.Lock()
	s.row = r
	s.mu.Unlock()
	s.relay.send(cardsChangedMsg{})
}

func (s *cardSurface) Unmount(r *cards.Row) {
	s.mu.Lock()
	if s.row == r {
		s.row = nil
	}
	s.mu.Unlock()
	s.relay.send(cardsChangedMsg{})
}

// Row returns the mounted row, or nil.
func (s *cardSurface) Row() *cards.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.row
}

// toastNotifier shows dispatch failures in the status bar.
type toastNotifier struct {
	relay *relay
}

func (n toastNotifier) Error(msg string) {
	n.relay.send(toastMsg{text: msg, err: true})
}
