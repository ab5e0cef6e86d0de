package cards

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the delay between two ticks.
const DefaultInterval = 500 * time.Millisecond

// NameFunc returns the participant identities that should be rendered now.
// The result is treated as a set.
type NameFunc func(ctx context.Context) ([]string, error)

// Reconciler polls Names and patches Row until it is told to stop.
type Reconciler struct {
	Names    NameFunc
	Row      *Row
	Interval time.Duration
	Logger   *zap.Logger

	// OnChange is called after a tick that changed the row.
	OnChange func(Patch)

	// Wake, when set, starts the next tick early.
	Wake <-chan struct{}
}

// Tick runs one fetch-diff-patch pass. On error the row is left untouched.
func (r *Reconciler) Tick(ctx context.Context) (p Patch, err error) {
	defer func() {
		if v := recover(); v != nil {
			p, err = Patch{}, fmt.Errorf("name source panicked: %v", v)
		}
	}()
	names, err := r.Names(ctx)
	if err != nil {
		return Patch{}, err
	}
	return r.Row.Sync(names), nil
}

// Run ticks immediately and then every Interval, or early on Wake. It
// returns when active reports false at the top of an iteration or ctx is
// cancelled, including while waiting for the next tick.
func (r *Reconciler) Run(ctx context.Context, active func() bool) {
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-r.Wake:
			timer.Stop()
		}
		if ctx.Err() != nil {
			return
		}
		if !active() {
			log.Debug("reconciler inactive, exiting")
			return
		}

		p, err := r.Tick(ctx)
		switch {
		case err != nil:
			log.Warn("card tick failed, retrying next tick", zap.Error(err))
		case !p.Empty():
			log.Debug("card row patched",
				zap.Strings("removed", p.Removed),
				zap.Strings("added", p.Added))
			if r.OnChange != nil {
				r.OnChange(p)
			}
		}
		timer.Reset(interval)
	}
}
