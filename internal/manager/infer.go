package manager

import (
	"context"
	"time"

	"statefuld/internal/runtime"
	"statefuld/internal/sequence"
	"statefuld/internal/status"
	"statefuld/pkg/types"
)

// Infer runs one stateful inference request end to end: validate, resolve
// the sequence, acquire a pooled handle, load the saved state, run one step,
// save the state back, and serialize the outputs. The response always
// carries the resolved sequence id as the "sequence_id" output.
//
// Lock discipline: the sequence-manager mutex is held only while the spec is
// resolved; the target sequence's mutex is acquired before the manager mutex
// is released and held across the whole inference. On END the manager mutex
// is re-acquired for removal only after the sequence mutex is released.
func (s *StatefulModel) Infer(ctx context.Context, src types.TensorSource) (out types.TensorMap, err error) {
	s.reporter.requestStarted()
	defer func() { s.reporter.requestFinished(err) }()

	spec, err := validateSpecialInputs(src)
	if err != nil {
		s.log.Debug().Err(err).Msg("special input validation failed")
		return nil, err
	}
	if err = validateInputs(src, s.compiled.Inputs()); err != nil {
		s.log.Debug().Err(err).Msg("input validation failed")
		return nil, err
	}

	s.sequences.Lock()
	if err = s.sequences.ProcessRequestedSpec(&spec); err != nil {
		s.sequences.Unlock()
		s.log.Debug().Err(err).Uint64("sequence_id", spec.SequenceID).Str("control", spec.Control.String()).Msg("sequence spec rejected")
		return nil, err
	}
	seq, err := s.sequences.GetSequence(spec.SequenceID)
	if err != nil {
		// ProcessRequestedSpec guarantees existence; a miss here means the
		// manager state is corrupted.
		s.sequences.Unlock()
		return nil, status.Newf(status.InternalError, "sequence %d vanished after spec processing", spec.SequenceID)
	}
	seq.Lock()
	seq.MarkActive()
	s.sequences.Unlock()
	seqLocked := true
	unlockSeq := func() {
		if seqLocked {
			seqLocked = false
			seq.Unlock()
		}
	}
	defer unlockSeq()

	lease := s.pool.Acquire()
	defer lease.Release()
	s.reporter.observeWait(lease.WaitTime())
	s.reporter.observePhase("get_handle", lease.ID(), lease.WaitTime())
	log := s.log.With().Int("handle", lease.ID()).Uint64("sequence_id", spec.SequenceID).Logger()
	log.Debug().Dur("wait", lease.WaitTime()).Str("control", spec.Control.String()).Msg("handle acquired")

	start := time.Now()
	err = s.preInferenceProcessing(lease.Handle, seq, spec)
	s.reporter.observePhase("preprocess", lease.ID(), time.Since(start))
	if err != nil {
		log.Error().Err(err).Msg("pre-inference processing failed")
		return nil, err
	}

	start = time.Now()
	err = s.deserializeInputs(lease.Handle, src)
	s.reporter.observePhase("deserialize", lease.ID(), time.Since(start))
	if err != nil {
		log.Error().Err(err).Msg("input deserialization failed")
		return nil, err
	}

	start = time.Now()
	err = lease.Handle.Infer(ctx)
	s.reporter.observePhase("inference", lease.ID(), time.Since(start))
	if err != nil {
		log.Error().Err(err).Msg("inference failed")
		return nil, status.Newf(status.InternalError, "inference failed: %v", err)
	}

	start = time.Now()
	out, err = s.serializeOutputs(lease.Handle)
	s.reporter.observePhase("serialize", lease.ID(), time.Since(start))
	if err != nil {
		log.Error().Err(err).Msg("output serialization failed")
		return nil, err
	}

	start = time.Now()
	s.postInferenceProcessing(lease.Handle, seq, spec, out)
	s.reporter.observePhase("postprocess", lease.ID(), time.Since(start))

	unlockSeq()
	if spec.Control == sequence.ControlEnd {
		s.sequences.Lock()
		err = s.sequences.RemoveSequence(spec.SequenceID)
		s.sequences.Unlock()
		if err != nil {
			log.Error().Err(err).Msg("sequence removal failed")
			return nil, err
		}
	}
	log.Debug().Msg("request complete")
	return out, nil
}

// preInferenceProcessing prepares the handle's state slots. On START every
// slot resets to the model default. Otherwise each slot is loaded from the
// sequence's saved state; a slot name absent from the saved map means the
// model's state layout changed under a live sequence, which is unrecoverable.
func (s *StatefulModel) preInferenceProcessing(h runtime.InferHandle, seq *sequence.Sequence, spec sequence.ProcessingSpec) error {
	if spec.Control == sequence.ControlStart {
		for _, st := range h.QueryState() {
			st.Reset()
		}
		return nil
	}
	saved := seq.GetMemoryState()
	for _, st := range h.QueryState() {
		t, ok := saved[st.Name()]
		if !ok {
			return status.Newf(status.InternalError,
				"state slot %q is absent from the saved state of sequence %d; the state layout of model %s version %d changed under a live sequence",
				st.Name(), seq.ID(), s.cfg.Name, s.cfg.Version)
		}
		st.SetState(t)
	}
	return nil
}

// deserializeInputs binds the request's non-special inputs to the handle.
func (s *StatefulModel) deserializeInputs(h runtime.InferHandle, src types.TensorSource) error {
	for name := range s.compiled.Inputs() {
		if _, special := specialInputNames[name]; special {
			continue
		}
		t, ok := src.Input(name)
		if !ok {
			return status.Newf(status.InvalidMissingInput, "missing input %q", name)
		}
		if err := h.SetInput(name, t); err != nil {
			return status.Newf(status.InternalError, "bind input %q: %v", name, err)
		}
	}
	return nil
}

// serializeOutputs reads the model's declared outputs from the handle.
func (s *StatefulModel) serializeOutputs(h runtime.InferHandle) (types.TensorMap, error) {
	out := make(types.TensorMap, len(s.compiled.Outputs())+1)
	for name := range s.compiled.Outputs() {
		t, err := h.Output(name)
		if err != nil {
			return nil, status.Newf(status.InternalError, "read output %q: %v", name, err)
		}
		out[name] = t
	}
	return out, nil
}

// postInferenceProcessing saves the handle's state into the sequence (or
// resets the handle on END) and stamps the resolved sequence id into the
// response for every control signal.
func (s *StatefulModel) postInferenceProcessing(h runtime.InferHandle, seq *sequence.Sequence, spec sequence.ProcessingSpec, out types.TensorMap) {
	if spec.Control == sequence.ControlEnd {
		for _, st := range h.QueryState() {
			st.Reset()
		}
	} else {
		saved := make(sequence.MemoryState, len(h.QueryState()))
		for _, st := range h.QueryState() {
			saved[st.Name()] = st.State().Clone()
		}
		seq.UpdateMemoryState(saved)
	}
	out[inputSequenceID] = types.NewUint64Tensor(spec.SequenceID)
}
