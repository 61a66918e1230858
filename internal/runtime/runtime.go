// Package runtime abstracts the native inference runtime that executes a
// compiled model. The in-memory stub is the only implementation in this
// module; the server binary and the tests both use it.
package runtime

import (
	"context"

	"statefuld/pkg/types"
)

// CompileOptions configures model compilation.
type CompileOptions struct {
	// LowLatencyTransformation applies the runtime's low-latency transform
	// before compilation. Stateful models need it for the runtime to expose
	// their state slots on the handle.
	LowLatencyTransformation bool
}

// Runtime compiles model artifacts into executable form.
type Runtime interface {
	Compile(model types.Model, opts CompileOptions) (CompiledModel, error)
}

// CompiledModel is a loaded, executable model.
type CompiledModel interface {
	// Inputs returns the declared input set by name.
	Inputs() map[string]types.TensorInfo
	// Outputs returns the declared output set by name.
	Outputs() map[string]types.TensorInfo
	// OptimalHandleCount is the runtime's recommended number of concurrent
	// execution handles for this model.
	OptimalHandleCount() int
	// NewHandle creates one execution handle against this model.
	NewHandle() (InferHandle, error)
	// Close releases the compiled model. Handles must not be used after.
	Close() error
}

// InferHandle is one execution slot on a compiled model. It owns live
// memory-state buffers while a request runs. Handles are not safe for
// concurrent use; the pool guarantees exclusive ownership.
type InferHandle interface {
	// QueryState returns the handle's state slots. The set of slot names is
	// fixed for the lifetime of the compiled model.
	QueryState() []VariableState
	// SetInput binds a named input tensor for the next inference step.
	SetInput(name string, t *types.Tensor) error
	// Output reads a named output tensor after an inference step.
	Output(name string) (*types.Tensor, error)
	// Infer runs one synchronous inference step.
	Infer(ctx context.Context) error
}

// VariableState is one named state slot on a handle.
type VariableState interface {
	Name() string
	// State returns the slot's current value.
	State() *types.Tensor
	// SetState overwrites the slot's value.
	SetState(t *types.Tensor)
	// Reset restores the slot to the model's default value.
	Reset()
}
