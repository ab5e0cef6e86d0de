package settings

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Debounced wraps a Store so Save returns at once and the write happens
// after delay, coalesced per scope. Load sees pending saves.
type Debounced struct {
	store Store
	delay time.Duration
	log   *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingSave
	wg      sync.WaitGroup
}

type pendingSave struct {
	settings Settings
	timer    *time.Timer
}

// NewDebounced wraps store.
func NewDebounced(store Store, delay time.Duration, log *zap.Logger) *Debounced {
	if log == nil {
		log = zap.NewNop()
	}
	return &Debounced{
		store:   store,
		delay:   delay,
		log:     log,
		pending: map[string]*pendingSave{},
	}
}

// Load returns a pending save for scope if there is one.
func (d *Debounced) Load(ctx context.Context, scope string) (Settings, error) {
	d.mu.Lock()
	p, ok := d.pending[scope]
	d.mu.Unlock()
	if ok {
		return p.settings.Clone(), nil
	}
	return d.store.Load(ctx, scope)
}

// Save schedules a write and never fails.
func (d *Debounced) Save(_ context.Context, scope string, s Settings) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pending[scope]; ok {
		p.settings = s.Clone()
		p.timer.Reset(d.delay)
		return nil
	}
	d.wg.Add(1)
	d.pending[scope] = &pendingSave{
		settings: s.Clone(),
		timer:    time.AfterFunc(d.delay, func() { d.fire(scope) }),
	}
	return nil
}

func (d *Debounced) fire(scope string) {
	d.mu.Lock()
	p, ok := d.pending[scope]
	if ok {
		delete(d.pending, scope)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	defer d.wg.Done()
	if err := d.store.Save(context.Background(), scope, p.settings); err != nil {
		d.log.Warn("settings save failed", zap.String("scope", scope), zap.Error(err))
	}
}

// Flush writes every pending save now and waits for writes in flight.
func (d *Debounced) Flush(ctx context.Context) error {
	d.mu.Lock()
	batch := d.pending
	d.pending = map[string]*pendingSave{}
	d.mu.Unlock()

	var errs error
	for scope, p := range batch {
		p.timer.Stop()
		if err := d.store.Save(ctx, scope, p.settings); err != nil {
			errs = errors.Join(errs, err)
		}
		d.wg.Done()
	}
	d.wg.Wait()
	return errs
}

// Close flushes and closes the underlying store.
func (d *Debounced) Close() error {
	err := d.Flush(context.Background())
	return errors.Join(err, d.store.Close())
}
