package manager

import (
	"statefuld/internal/status"
	"statefuld/pkg/types"
)

// validateInputs checks the request's non-special inputs against the model's
// declared input set. The reserved names are never validated here: their
// absence or presence cannot fail a request on generic grounds.
func validateInputs(src types.TensorSource, declared map[string]types.TensorInfo) error {
	for _, name := range src.InputNames() {
		if _, special := specialInputNames[name]; special {
			continue
		}
		if _, ok := declared[name]; !ok {
			return status.Newf(status.InvalidUnexpectedInput, "unexpected input %q", name)
		}
	}
	for name, info := range declared {
		if _, special := specialInputNames[name]; special {
			continue
		}
		t, ok := src.Input(name)
		if !ok {
			return status.Newf(status.InvalidMissingInput, "missing input %q", name)
		}
		if err := validateShape(name, t, info); err != nil {
			return err
		}
		if t.Elem != info.Elem {
			return status.Newf(status.InvalidPrecision, "input %q expects %s, got %s", name, info.Elem, t.Elem)
		}
	}
	return nil
}

// validateShape compares a tensor's shape to the declared one. A declared
// dimension of -1 accepts any size.
func validateShape(name string, t *types.Tensor, info types.TensorInfo) error {
	if len(t.Shape) != len(info.Shape) {
		return status.Newf(status.InvalidNoOfShapeDimensions, "input %q expects %d dimensions, got %d", name, len(info.Shape), len(t.Shape))
	}
	for i, want := range info.Shape {
		if want == -1 {
			continue
		}
		if t.Shape[i] != want {
			return status.Newf(status.InvalidShape, "input %q dimension %d expects %d, got %d", name, i, want, t.Shape[i])
		}
	}
	if want := t.Elements() * int64(t.Elem.Size()); int64(len(t.Bytes)) != want {
		return status.Newf(status.InvalidShape, "input %q payload does not match its shape", name)
	}
	return nil
}
