package manager

import (
	"statefuld/internal/sequence"
	"statefuld/internal/status"
	"statefuld/pkg/types"
)

// Reserved input names carrying the sequence control scalars. They are
// excluded from generic input validation.
const (
	inputSequenceID      = "sequence_id"
	inputSequenceControl = "sequence_control_input"
)

var specialInputNames = map[string]struct{}{
	inputSequenceID:      {},
	inputSequenceControl: {},
}

// extractSequenceID reads the single UINT64 value of a shape (1) tensor.
func extractSequenceID(t *types.Tensor) (uint64, error) {
	if len(t.Shape) == 0 {
		return 0, status.New(status.SpecialInputNoTensorShape, "sequence_id tensor carries no shape information")
	}
	if len(t.Shape) != 1 {
		return 0, status.New(status.InvalidNoOfShapeDimensions, "required shape for sequence_id is: (1)")
	}
	if t.Shape[0] != 1 {
		return 0, status.New(status.InvalidShape, "required shape for sequence_id is: (1)")
	}
	v, err := t.Uint64Value()
	if err != nil {
		return 0, status.New(status.SequenceIDBadType, "sequence_id must carry a single UINT64 value")
	}
	return v, nil
}

// extractControl reads the single UINT32 value of a shape (1) tensor.
func extractControl(t *types.Tensor) (uint32, error) {
	if len(t.Shape) == 0 {
		return 0, status.New(status.SpecialInputNoTensorShape, "sequence_control_input tensor carries no shape information")
	}
	if len(t.Shape) != 1 {
		return 0, status.New(status.InvalidNoOfShapeDimensions, "required shape for sequence_control_input is: (1)")
	}
	if t.Shape[0] != 1 {
		return 0, status.New(status.InvalidShape, "required shape for sequence_control_input is: (1)")
	}
	v, err := t.Uint32Value()
	if err != nil {
		return 0, status.New(status.SequenceControlInputBadType, "sequence_control_input must carry a single UINT32 value")
	}
	return v, nil
}

// validateSpecialInputs extracts the two control scalars from the request
// envelope and applies the cross-field rule. An absent sequence_id is 0; an
// absent control input is CONTINUE.
func validateSpecialInputs(src types.TensorSource) (sequence.ProcessingSpec, error) {
	var spec sequence.ProcessingSpec
	if t, ok := src.Input(inputSequenceID); ok {
		id, err := extractSequenceID(t)
		if err != nil {
			return spec, err
		}
		spec.SequenceID = id
	}
	if t, ok := src.Input(inputSequenceControl); ok {
		ctl, err := extractControl(t)
		if err != nil {
			return spec, err
		}
		spec.Control = sequence.ControlInput(ctl)
	}

	if !spec.Control.Valid() {
		return spec, status.Newf(status.InvalidSequenceControlInput, "unknown sequence control input %d", uint32(spec.Control))
	}
	if (spec.Control == sequence.ControlContinue || spec.Control == sequence.ControlEnd) && spec.SequenceID == 0 {
		return spec, status.New(status.SequenceIDNotProvided, "sequence id is required for CONTINUE and END")
	}
	return spec, nil
}
