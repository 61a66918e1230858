package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"statefuld/pkg/types"
)

func TestStubStateEvolution(t *testing.T) {
	cm := compileStub(t)
	h, err := cm.NewHandle()
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	states := h.QueryState()
	if len(states) != 2 {
		t.Fatalf("expected 2 state slots, got %d", len(states))
	}

	in := types.NewFP32Tensor([]int64{1, 3}, []float32{1, 2, 3})
	if err := h.SetInput("input", in); err != nil {
		t.Fatalf("set input: %v", err)
	}
	if err := h.Infer(context.Background()); err != nil {
		t.Fatalf("infer: %v", err)
	}
	out, err := h.Output("output")
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if vals := out.FP32Values(); vals[0] != 1 || vals[2] != 3 {
		t.Fatalf("first step must echo the input, got %v", vals)
	}

	// Second step sees both counters at 1, so the output shifts by 2.
	if err := h.SetInput("input", in); err != nil {
		t.Fatalf("set input: %v", err)
	}
	if err := h.Infer(context.Background()); err != nil {
		t.Fatalf("infer: %v", err)
	}
	out, err = h.Output("output")
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if vals := out.FP32Values(); vals[0] != 3 {
		t.Fatalf("expected shift of 2, got %v", vals)
	}

	for _, st := range states {
		st.Reset()
	}
	for _, st := range states {
		if v := st.State().FP32Values()[0]; v != 0 {
			t.Fatalf("reset state slot %s holds %v", st.Name(), v)
		}
	}
}

func TestStubRejectsUnknownInput(t *testing.T) {
	cm := compileStub(t)
	h, err := cm.NewHandle()
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := h.SetInput("bogus", types.NewFP32Tensor([]int64{1, 1}, []float32{0})); err == nil {
		t.Fatalf("expected error for unknown input")
	}
	if _, err := h.Output("output"); err == nil {
		t.Fatalf("expected error reading output before inference")
	}
}

func TestStubCompileErrors(t *testing.T) {
	r := NewStubRuntime()
	if _, err := r.Compile(types.Model{Name: "x"}, CompileOptions{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := r.Compile(types.Model{Name: "x", Path: "/nonexistent/model.xml"}, CompileOptions{}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestStatefulModelWithoutLowLatencyHasNoStateSlots(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "m.xml")
	if err := os.WriteFile(p, []byte("model"), 0o644); err != nil {
		t.Fatalf("write model file: %v", err)
	}
	cm, err := NewStubRuntime().Compile(
		types.Model{Name: "echo", Path: p, Stateful: true},
		CompileOptions{},
	)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	h, err := cm.NewHandle()
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if n := len(h.QueryState()); n != 0 {
		t.Fatalf("expected no state slots without the transform, got %d", n)
	}
}

func TestClosedModelRejectsNewHandles(t *testing.T) {
	cm := compileStub(t)
	if err := cm.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := cm.NewHandle(); err == nil {
		t.Fatalf("expected error creating handle on closed model")
	}
}
