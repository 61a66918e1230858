package manager

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"statefuld/internal/runtime"
	"statefuld/internal/sequence"
	"statefuld/internal/status"
	"statefuld/pkg/types"
)

func newTestManager(t *testing.T, reaper *sequence.Reaper) *Manager {
	t.Helper()
	m, err := NewWithConfig(ManagerConfig{
		Registry: []types.Model{testModelConfig(t, 10)},
		Runtime:  runtime.NewStubRuntime(),
		Reaper:   reaper,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func TestManagerRoutesToModel(t *testing.T) {
	m := newTestManager(t, nil)
	out, err := m.Infer(context.Background(), "echo", 0, withControl(inferInput(1), ctlStart))
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if responseSequenceID(t, out) == 0 {
		t.Fatalf("expected assigned id")
	}
}

func TestManagerModelNotFound(t *testing.T) {
	m := newTestManager(t, nil)
	_, err := m.Infer(context.Background(), "missing", 0, withControl(inferInput(1), ctlStart))
	if err == nil || !IsModelNotFound(err) {
		t.Fatalf("expected model not found, got %v", err)
	}
	// Version mismatch is also a miss.
	_, err = m.Infer(context.Background(), "echo", 2, withControl(inferInput(1), ctlStart))
	if err == nil || !IsModelNotFound(err) {
		t.Fatalf("expected model not found for version mismatch, got %v", err)
	}
}

func TestManagerRejectsNonStatefulModel(t *testing.T) {
	cfg := testModelConfig(t, 10)
	cfg.Stateful = false
	_, err := NewWithConfig(ManagerConfig{
		Registry: []types.Model{cfg},
		Runtime:  runtime.NewStubRuntime(),
		Logger:   zerolog.Nop(),
	})
	if err == nil {
		t.Fatalf("expected error for non-stateful model")
	}
}

func TestManagerListAndStatus(t *testing.T) {
	m := newTestManager(t, nil)
	models := m.ListModels()
	if len(models) != 1 || models[0].Name != "echo" {
		t.Fatalf("unexpected models: %+v", models)
	}
	if !m.Ready() {
		t.Fatalf("expected ready")
	}
	if _, err := m.Infer(context.Background(), "echo", 0, withControl(inferInput(1), ctlStart)); err != nil {
		t.Fatalf("infer: %v", err)
	}
	st := m.Status()
	if len(st.Models) != 1 {
		t.Fatalf("expected one model status, got %d", len(st.Models))
	}
	ms := st.Models[0]
	if ms.Sequences != 1 || ms.PoolSize != 2 || ms.Inflight != 0 {
		t.Fatalf("unexpected model status: %+v", ms)
	}
}

func TestManagerRetireModel(t *testing.T) {
	reaper := sequence.NewReaper(time.Minute, zerolog.Nop())
	m := newTestManager(t, reaper)
	if err := m.RetireModel("echo", 1); err != nil {
		t.Fatalf("retire: %v", err)
	}
	if m.Ready() {
		t.Fatalf("manager still ready after retiring its only model")
	}
	if err := m.RetireModel("echo", 1); !IsModelNotFound(err) {
		t.Fatalf("expected model not found on double retire, got %v", err)
	}
}

// After two sweeps with no traffic the sequence is gone and CONTINUE fails.
func TestManagerReaperEvictsIdleSequences(t *testing.T) {
	reaper := sequence.NewReaper(time.Minute, zerolog.Nop())
	m := newTestManager(t, reaper)
	ctx := context.Background()

	out, err := m.Infer(ctx, "echo", 0, withControl(inferInput(1), ctlStart))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	id := responseSequenceID(t, out)

	reaper.Sweep()
	// A request between sweeps keeps the sequence alive.
	if _, err := m.Infer(ctx, "echo", 0, withSequenceID(withControl(inferInput(1), ctlContinue), id)); err != nil {
		t.Fatalf("continue: %v", err)
	}
	reaper.Sweep()
	if _, err := m.Infer(ctx, "echo", 0, withSequenceID(withControl(inferInput(1), ctlContinue), id)); err != nil {
		t.Fatalf("sequence evicted despite traffic: %v", err)
	}

	reaper.Sweep()
	reaper.Sweep()
	_, err = m.Infer(ctx, "echo", 0, withSequenceID(withControl(inferInput(1), ctlContinue), id))
	if !status.Is(err, status.SequenceMissing) {
		t.Fatalf("expected SEQUENCE_MISSING after two idle sweeps, got %v", err)
	}
}

func TestManagerReloadModelDropsSequences(t *testing.T) {
	reaper := sequence.NewReaper(time.Minute, zerolog.Nop())
	m := newTestManager(t, reaper)
	ctx := context.Background()

	out, err := m.Infer(ctx, "echo", 0, withControl(inferInput(1), ctlStart))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	id := responseSequenceID(t, out)

	if err := m.ReloadModel(testModelConfig(t, 10)); err != nil {
		t.Fatalf("reload: %v", err)
	}
	// The old sequence did not survive the reload.
	_, err = m.Infer(ctx, "echo", 0, withSequenceID(withControl(inferInput(1), ctlContinue), id))
	if !status.Is(err, status.SequenceMissing) {
		t.Fatalf("expected SEQUENCE_MISSING after reload, got %v", err)
	}
	// The reloaded model serves and its sequence manager is swept.
	out, err = m.Infer(ctx, "echo", 0, withControl(inferInput(1), ctlStart))
	if err != nil {
		t.Fatalf("start after reload: %v", err)
	}
	id = responseSequenceID(t, out)
	reaper.Sweep()
	reaper.Sweep()
	_, err = m.Infer(ctx, "echo", 0, withSequenceID(withControl(inferInput(1), ctlContinue), id))
	if !status.Is(err, status.SequenceMissing) {
		t.Fatalf("reaper lost the reloaded manager: %v", err)
	}
}

func TestManagerReloadModelFailureKeepsOldInstance(t *testing.T) {
	reaper := sequence.NewReaper(time.Minute, zerolog.Nop())
	m := newTestManager(t, reaper)
	ctx := context.Background()

	out, err := m.Infer(ctx, "echo", 0, withControl(inferInput(1), ctlStart))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	id := responseSequenceID(t, out)

	bad := testModelConfig(t, 10)
	bad.Path = "/nonexistent/echo.xml"
	if err := m.ReloadModel(bad); err == nil {
		t.Fatalf("expected reload failure for missing artifact")
	}
	// Old instance keeps serving, sequences intact.
	if _, err := m.Infer(ctx, "echo", 0, withSequenceID(withControl(inferInput(1), ctlContinue), id)); err != nil {
		t.Fatalf("old instance broken after failed reload: %v", err)
	}
	// Its reaper registration was restored.
	reaper.Sweep()
	reaper.Sweep()
	_, err = m.Infer(ctx, "echo", 0, withSequenceID(withControl(inferInput(1), ctlContinue), id))
	if !status.Is(err, status.SequenceMissing) {
		t.Fatalf("old manager no longer swept after failed reload: %v", err)
	}
}

func TestManagerReloadUnknownModel(t *testing.T) {
	m := newTestManager(t, nil)
	cfg := testModelConfig(t, 10)
	cfg.Name = "missing"
	if err := m.ReloadModel(cfg); !IsModelNotFound(err) {
		t.Fatalf("expected model not found, got %v", err)
	}
}

// Retiring a model mid-flight is safe for the reaper: it unregisters first.
func TestRetiredModelIsNotSwept(t *testing.T) {
	reaper := sequence.NewReaper(time.Minute, zerolog.Nop())
	m := newTestManager(t, reaper)
	if _, err := m.Infer(context.Background(), "echo", 0, withControl(inferInput(1), ctlStart)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.RetireModel("echo", 0); err != nil {
		t.Fatalf("retire: %v", err)
	}
	// Sweeping after retirement must not touch the dropped manager.
	reaper.Sweep()
	reaper.Sweep()
}
