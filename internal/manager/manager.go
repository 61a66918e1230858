package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"statefuld/internal/runtime"
	"statefuld/internal/sequence"
	"statefuld/pkg/types"
)

// Manager owns all loaded stateful models and routes requests to them.
type Manager struct {
	mu        sync.RWMutex
	models    map[string]*StatefulModel
	rt        runtime.Runtime
	reaper    *sequence.Reaper
	startTime time.Time
	log       zerolog.Logger
}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Registry []types.Model
	Runtime  runtime.Runtime
	// Reaper receives sequence managers of models with idle cleanup enabled.
	// May be nil, disabling cleanup regardless of model config.
	Reaper *sequence.Reaper
	Logger zerolog.Logger
}

// NewWithConfig loads every registry model. On any load failure the models
// loaded so far are retired and the error is returned.
func NewWithConfig(cfg ManagerConfig) (*Manager, error) {
	m := &Manager{
		models:    make(map[string]*StatefulModel, len(cfg.Registry)),
		rt:        cfg.Runtime,
		reaper:    cfg.Reaper,
		startTime: time.Now(),
		log:       cfg.Logger,
	}
	for _, mdl := range cfg.Registry {
		inst, err := newStatefulModel(cfg.Runtime, mdl, cfg.Reaper, cfg.Logger)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.models[mdl.Name] = inst
	}
	return m, nil
}

// Infer routes one request to the named model version. Version 0 accepts
// whatever version is loaded.
func (m *Manager) Infer(ctx context.Context, model string, version int64, src types.TensorSource) (types.TensorMap, error) {
	m.mu.RLock()
	inst, ok := m.models[model]
	m.mu.RUnlock()
	if !ok || (version != 0 && inst.cfg.Version != version) {
		return nil, ErrModelNotFound(model, version)
	}
	return inst.Infer(ctx, src)
}

// ListModels returns a copy of the loaded model descriptors.
func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Model, 0, len(m.models))
	for _, inst := range m.models {
		out = append(out, inst.Model())
	}
	return out
}

// Ready reports whether at least one model is serving.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.models) > 0
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp := types.StatusResponse{
		Models:         make([]types.ModelStatus, 0, len(m.models)),
		UptimeSeconds:  int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	for _, inst := range m.models {
		resp.Models = append(resp.Models, inst.Status())
	}
	return resp
}

// ReloadModel replaces a loaded model with a fresh instance built from cfg.
// The old registration is removed before the replacement compiles, and the
// replacement re-registers when cleanup remains enabled, so the reaper never
// sweeps a dead owner. Saved sequences do not survive a reload: the new
// artifact may expose a different state layout.
func (m *Manager) ReloadModel(cfg types.Model) error {
	m.mu.Lock()
	old, ok := m.models[cfg.Name]
	m.mu.Unlock()
	if !ok {
		return ErrModelNotFound(cfg.Name, cfg.Version)
	}
	if old.cfg.CleanupEnabled() && m.reaper != nil {
		m.reaper.Unregister(old.cfg.Name, old.cfg.Version)
	}
	inst, err := newStatefulModel(m.rt, cfg, m.reaper, m.log)
	if err != nil {
		// Leave the old instance serving; restore its registration.
		if old.cfg.CleanupEnabled() && m.reaper != nil {
			m.reaper.Register(old.cfg.Name, old.cfg.Version, old.sequences)
		}
		return err
	}
	m.mu.Lock()
	m.models[cfg.Name] = inst
	m.mu.Unlock()
	old.close()
	m.log.Info().Str("model", cfg.Name).Int64("version", cfg.Version).Msg("model reloaded")
	return nil
}

// RetireModel permanently unloads a model version: it unregisters from the
// reaper first, then drops the instance and its sequences.
func (m *Manager) RetireModel(model string, version int64) error {
	m.mu.Lock()
	inst, ok := m.models[model]
	if !ok || (version != 0 && inst.cfg.Version != version) {
		m.mu.Unlock()
		return ErrModelNotFound(model, version)
	}
	delete(m.models, model)
	m.mu.Unlock()
	inst.Retire()
	return nil
}

// Close retires every loaded model.
func (m *Manager) Close() {
	m.mu.Lock()
	insts := make([]*StatefulModel, 0, len(m.models))
	for name, inst := range m.models {
		insts = append(insts, inst)
		delete(m.models, name)
	}
	m.mu.Unlock()
	for _, inst := range insts {
		inst.Retire()
	}
}
