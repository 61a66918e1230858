package sequence

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCleanerInterval is the reaper period when the server config leaves
// it unset.
const DefaultCleanerInterval = 5 * time.Minute

// Reaper periodically evicts idle sequences from every registered manager.
// A sequence survives a sweep iff it was touched since the previous sweep;
// two untouched intervals in a row remove it. The reaper holds only
// non-owning references to managers; a model unregisters before it is
// retired.
type Reaper struct {
	mu       sync.Mutex
	targets  map[string]*Manager
	interval time.Duration

	stop chan struct{}
	done chan struct{}
	log  zerolog.Logger
}

// NewReaper creates a stopped reaper with the given sweep interval.
func NewReaper(interval time.Duration, log zerolog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultCleanerInterval
	}
	return &Reaper{
		targets:  make(map[string]*Manager),
		interval: interval,
		log:      log.With().Str("component", "sequence_reaper").Logger(),
	}
}

func targetKey(name string, version int64) string {
	return fmt.Sprintf("%s/%d", name, version)
}

// Register adds a manager to the sweep set. Idempotent: re-registering the
// same model version replaces the reference.
func (r *Reaper) Register(name string, version int64, m *Manager) {
	r.mu.Lock()
	r.targets[targetKey(name, version)] = m
	r.mu.Unlock()
	r.log.Debug().Str("model", name).Int64("version", version).Msg("registered for idle sequence cleanup")
}

// Unregister removes a manager from the sweep set. Idempotent.
func (r *Reaper) Unregister(name string, version int64) {
	r.mu.Lock()
	delete(r.targets, targetKey(name, version))
	r.mu.Unlock()
	r.log.Debug().Str("model", name).Int64("version", version).Msg("unregistered from idle sequence cleanup")
}

// Start launches the background sweep loop. Call Stop to join it.
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.run(r.stop, r.done)
	r.log.Info().Dur("interval", r.interval).Msg("sequence reaper started")
}

// Stop halts the sweep loop and waits for it to exit. Safe to call on a
// stopped reaper.
func (r *Reaper) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	r.log.Info().Msg("sequence reaper stopped")
}

func (r *Reaper) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-stop:
			return
		}
	}
}

// Sweep runs one pass over every registered manager: evict sequences still
// flagged idle from the previous pass, then flag the survivors. Exported so
// tests can drive sweeps without the timer.
func (r *Reaper) Sweep() {
	r.mu.Lock()
	targets := make([]*Manager, 0, len(r.targets))
	for _, m := range r.targets {
		targets = append(targets, m)
	}
	r.mu.Unlock()

	for _, m := range targets {
		removed := m.RemoveIdleSequences()
		m.MarkAllIdle()
		if removed > 0 {
			r.log.Debug().
				Str("model", m.ModelName()).
				Int64("version", m.ModelVersion()).
				Int("removed", removed).
				Msg("evicted idle sequences")
		}
	}
}
