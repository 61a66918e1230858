package manager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"statefuld/internal/runtime"
	"statefuld/internal/sequence"
	"statefuld/pkg/types"
)

// createModelFile writes a placeholder artifact the stub runtime can stat.
func createModelFile(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("model"), 0o644); err != nil {
		t.Fatalf("write model file: %v", err)
	}
	return p
}

func testModelConfig(t *testing.T, maxSequences uint32) types.Model {
	t.Helper()
	return types.Model{
		Name:                     "echo",
		Version:                  1,
		Path:                     createModelFile(t, "echo.xml"),
		Stateful:                 true,
		MaxSequenceNumber:        maxSequences,
		LowLatencyTransformation: true,
		NiReq:                    2,
	}
}

func newTestModel(t *testing.T, maxSequences uint32, reaper *sequence.Reaper) *StatefulModel {
	t.Helper()
	inst, err := newStatefulModel(runtime.NewStubRuntime(), testModelConfig(t, maxSequences), reaper, zerolog.Nop())
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	t.Cleanup(inst.Retire)
	return inst
}

// inferInput builds a request with the given data payload and no special
// inputs; callers add sequence_id / sequence_control_input as needed.
func inferInput(data ...float32) types.TensorMap {
	return types.TensorMap{
		"input": types.NewFP32Tensor([]int64{1, int64(len(data))}, data),
	}
}

func withControl(src types.TensorMap, control uint32) types.TensorMap {
	src[inputSequenceControl] = types.NewUint32Tensor(control)
	return src
}

func withSequenceID(src types.TensorMap, id uint64) types.TensorMap {
	src[inputSequenceID] = types.NewUint64Tensor(id)
	return src
}

// responseSequenceID reads the echoed sequence id out of a response.
func responseSequenceID(t *testing.T, out types.TensorMap) uint64 {
	t.Helper()
	tensor, ok := out[inputSequenceID]
	if !ok {
		t.Fatalf("response has no sequence_id output")
	}
	if len(tensor.Shape) != 1 || tensor.Shape[0] != 1 || tensor.Elem != types.ElemUint64 {
		t.Fatalf("sequence_id output has wrong shape or type: %+v", tensor)
	}
	id, err := tensor.Uint64Value()
	if err != nil {
		t.Fatalf("sequence_id output: %v", err)
	}
	return id
}
