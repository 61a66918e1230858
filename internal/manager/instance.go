package manager

import (
	"fmt"

	"github.com/rs/zerolog"

	"statefuld/internal/runtime"
	"statefuld/internal/sequence"
	"statefuld/pkg/types"
)

// StatefulModel is one loaded stateful model version: its compiled form, the
// handle pool shared by all of its sequences, the sequence manager, and the
// per-model metric reporter.
type StatefulModel struct {
	cfg       types.Model
	compiled  runtime.CompiledModel
	pool      *runtime.HandlePool
	sequences *sequence.Manager
	reporter  *reporter
	reaper    *sequence.Reaper
	log       zerolog.Logger
}

// newStatefulModel compiles the model, pre-creates the handle pool, creates
// the sequence manager, and registers for idle cleanup when configured.
func newStatefulModel(rt runtime.Runtime, cfg types.Model, reaper *sequence.Reaper, log zerolog.Logger) (*StatefulModel, error) {
	if !cfg.Stateful {
		return nil, fmt.Errorf("model %s is not stateful", cfg.Name)
	}
	compiled, err := rt.Compile(cfg, runtime.CompileOptions{
		LowLatencyTransformation: cfg.LowLatencyTransformation,
	})
	if err != nil {
		return nil, fmt.Errorf("compile model %s version %d: %w", cfg.Name, cfg.Version, err)
	}
	pool, err := runtime.NewHandlePool(compiled, cfg.NiReq)
	if err != nil {
		_ = compiled.Close()
		return nil, fmt.Errorf("create handle pool for %s version %d: %w", cfg.Name, cfg.Version, err)
	}
	s := &StatefulModel{
		cfg:       cfg,
		compiled:  compiled,
		pool:      pool,
		sequences: sequence.NewManager(cfg.Name, cfg.Version, cfg.MaxSequenceNumber),
		reporter:  newReporter(cfg.Name, cfg.Version),
		reaper:    reaper,
		log: log.With().
			Str("model", cfg.Name).
			Int64("version", cfg.Version).
			Logger(),
	}
	if cfg.CleanupEnabled() && reaper != nil {
		reaper.Register(cfg.Name, cfg.Version, s.sequences)
	}
	s.log.Info().
		Int("nireq", pool.Size()).
		Uint32("max_sequences", s.sequences.MaxSequences()).
		Bool("idle_cleanup", cfg.CleanupEnabled()).
		Msg("stateful model loaded")
	return s, nil
}

// Model returns the manifest entry this instance was loaded from.
func (s *StatefulModel) Model() types.Model { return s.cfg }

// Retire unregisters from the reaper first so no sweep dereferences a
// retired owner, then releases the compiled model. Sequence state is
// process-local and dropped with the instance.
func (s *StatefulModel) Retire() {
	if s.cfg.CleanupEnabled() && s.reaper != nil {
		s.reaper.Unregister(s.cfg.Name, s.cfg.Version)
	}
	s.close()
	s.log.Info().Msg("stateful model retired")
}

// close releases the compiled model without touching the reaper
// registration. Used on reload, where the replacement instance has already
// re-registered under the same key.
func (s *StatefulModel) close() {
	if err := s.compiled.Close(); err != nil {
		s.log.Warn().Err(err).Msg("closing compiled model")
	}
}

// Status projects this instance for the status endpoint.
func (s *StatefulModel) Status() types.ModelStatus {
	return types.ModelStatus{
		Name:         s.cfg.Name,
		Version:      s.cfg.Version,
		State:        "ready",
		Sequences:    s.sequences.Population(),
		MaxSequences: s.sequences.MaxSequences(),
		PoolSize:     s.pool.Size(),
		Inflight:     s.pool.InUse(),
		IdleCleanup:  s.cfg.CleanupEnabled(),
	}
}
