package runtime

import (
	"context"
	"fmt"
	"os"

	"statefuld/pkg/types"
)

// StubRuntime is a deterministic in-memory runtime. Its model declares one
// FP32 input "input" of shape (1,N), one FP32 output "output" of the same
// shape, and two FP32 (1,1) state slots that count inference steps. The
// output is the input shifted by the sum of the state slots, so state
// evolution across a sequence is observable from responses.
type StubRuntime struct{}

// NewStubRuntime returns a stub runtime.
func NewStubRuntime() *StubRuntime { return &StubRuntime{} }

var stubStateNames = []string{"memory_state_1", "memory_state_2"}

func (r *StubRuntime) Compile(model types.Model, opts CompileOptions) (CompiledModel, error) {
	if model.Path == "" {
		return nil, fmt.Errorf("model %s: empty path", model.Name)
	}
	if _, err := os.Stat(model.Path); err != nil {
		return nil, fmt.Errorf("model %s: %w", model.Name, err)
	}
	stateNames := stubStateNames
	if model.Stateful && !opts.LowLatencyTransformation {
		// Without the transform the network keeps its internal loops and the
		// runtime exposes no queryable state slots.
		stateNames = nil
	}
	return &stubCompiledModel{stateNames: stateNames}, nil
}

type stubCompiledModel struct {
	stateNames []string
	closed     bool
}

func (m *stubCompiledModel) Inputs() map[string]types.TensorInfo {
	return map[string]types.TensorInfo{
		"input": {Name: "input", Shape: []int64{1, -1}, Elem: types.ElemFP32},
	}
}

func (m *stubCompiledModel) Outputs() map[string]types.TensorInfo {
	return map[string]types.TensorInfo{
		"output": {Name: "output", Shape: []int64{1, -1}, Elem: types.ElemFP32},
	}
}

func (m *stubCompiledModel) OptimalHandleCount() int { return 2 }

func (m *stubCompiledModel) NewHandle() (InferHandle, error) {
	if m.closed {
		return nil, fmt.Errorf("compiled model is closed")
	}
	h := &stubHandle{inputs: map[string]*types.Tensor{}}
	for _, name := range m.stateNames {
		h.states = append(h.states, &stubState{name: name, value: stubDefaultState()})
	}
	return h, nil
}

func (m *stubCompiledModel) Close() error {
	m.closed = true
	return nil
}

func stubDefaultState() *types.Tensor {
	return types.NewFP32Tensor([]int64{1, 1}, []float32{0})
}

type stubHandle struct {
	inputs map[string]*types.Tensor
	output *types.Tensor
	states []VariableState
}

func (h *stubHandle) QueryState() []VariableState { return h.states }

func (h *stubHandle) SetInput(name string, t *types.Tensor) error {
	if name != "input" {
		return fmt.Errorf("unknown input %q", name)
	}
	h.inputs[name] = t.Clone()
	return nil
}

func (h *stubHandle) Output(name string) (*types.Tensor, error) {
	if name != "output" || h.output == nil {
		return nil, fmt.Errorf("output %q not available", name)
	}
	return h.output.Clone(), nil
}

func (h *stubHandle) Infer(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, ok := h.inputs["input"]
	if !ok {
		return fmt.Errorf("input %q not set", "input")
	}
	var shift float32
	for _, st := range h.states {
		shift += st.State().FP32Values()[0]
	}
	vals := in.FP32Values()
	out := make([]float32, len(vals))
	for i, v := range vals {
		out[i] = v + shift
	}
	h.output = types.NewFP32Tensor(in.Shape, out)
	for _, st := range h.states {
		cur := st.State().FP32Values()[0]
		st.SetState(types.NewFP32Tensor([]int64{1, 1}, []float32{cur + 1}))
	}
	return nil
}

type stubState struct {
	name  string
	value *types.Tensor
}

func (s *stubState) Name() string { return s.name }

func (s *stubState) State() *types.Tensor { return s.value.Clone() }

func (s *stubState) SetState(t *types.Tensor) { s.value = t.Clone() }

func (s *stubState) Reset() { s.value = stubDefaultState() }
