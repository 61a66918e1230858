package sequence

import (
	"sync"

	"statefuld/internal/status"
)

// DefaultMaxSequenceNumber bounds sequence population when the model config
// leaves it unset.
const DefaultMaxSequenceNumber uint32 = 500

// Manager owns the sequences of one (model, version). The manager mutex
// guards the sequence map; lock ordering is manager mutex before any
// sequence mutex, never the reverse.
//
// Methods documented as "caller holds the mutex" are the request path:
// the pipeline takes the mutex once, resolves the spec, locks the target
// sequence, and releases the manager mutex. The reaper-facing methods
// (MarkAllIdle, RemoveIdleSequences) lock internally.
type Manager struct {
	mu        sync.Mutex
	sequences map[uint64]*Sequence

	modelName    string
	modelVersion int64
	maxSequences uint32

	// Monotonic cursor for generated ids; wraps and probes past in-use ids.
	idCursor uint64
}

// NewManager creates an empty manager for one model version.
func NewManager(modelName string, modelVersion int64, maxSequences uint32) *Manager {
	if maxSequences == 0 {
		maxSequences = DefaultMaxSequenceNumber
	}
	return &Manager{
		sequences:    make(map[uint64]*Sequence),
		modelName:    modelName,
		modelVersion: modelVersion,
		maxSequences: maxSequences,
	}
}

// Lock acquires the manager mutex.
func (m *Manager) Lock() { m.mu.Lock() }

// Unlock releases the manager mutex.
func (m *Manager) Unlock() { m.mu.Unlock() }

// ModelName returns the owning model's name.
func (m *Manager) ModelName() string { return m.modelName }

// ModelVersion returns the owning model's version.
func (m *Manager) ModelVersion() int64 { return m.modelVersion }

// MaxSequences returns the configured population bound.
func (m *Manager) MaxSequences() uint32 { return m.maxSequences }

// Population returns the current number of live sequences.
func (m *Manager) Population() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sequences)
}

// ProcessRequestedSpec validates the control signal against the current
// sequence population and creates the sequence on START. On START with id 0
// a fresh id is generated and written back into the spec. Caller holds the
// mutex.
func (m *Manager) ProcessRequestedSpec(spec *ProcessingSpec) error {
	switch spec.Control {
	case ControlStart:
		return m.createSequence(spec)
	case ControlContinue, ControlEnd:
		if spec.SequenceID == 0 {
			return status.New(status.SequenceIDNotProvided, "sequence id is required for CONTINUE and END")
		}
		if _, ok := m.sequences[spec.SequenceID]; !ok {
			return status.Newf(status.SequenceMissing, "sequence %d does not exist", spec.SequenceID)
		}
		return nil
	}
	return status.Newf(status.InvalidSequenceControlInput, "unknown sequence control input %d", uint32(spec.Control))
}

// createSequence inserts a new sequence for spec. Caller holds the mutex.
func (m *Manager) createSequence(spec *ProcessingSpec) error {
	if uint32(len(m.sequences)) >= m.maxSequences {
		return status.Newf(status.MaxSequencesReached, "max sequences number (%d) reached", m.maxSequences)
	}
	if spec.SequenceID == 0 {
		spec.SequenceID = m.nextUniqueID()
	} else if _, ok := m.sequences[spec.SequenceID]; ok {
		return status.Newf(status.SequenceAlreadyExists, "sequence %d already exists", spec.SequenceID)
	}
	m.sequences[spec.SequenceID] = NewSequence(spec.SequenceID)
	return nil
}

// nextUniqueID advances the cursor past 0 and any id in use. Terminates
// because the population bound was checked before generation. Caller holds
// the mutex.
func (m *Manager) nextUniqueID() uint64 {
	for {
		m.idCursor++
		if m.idCursor == 0 {
			continue
		}
		if _, ok := m.sequences[m.idCursor]; !ok {
			return m.idCursor
		}
	}
}

// HasSequence reports whether id is live. Caller holds the mutex.
func (m *Manager) HasSequence(id uint64) bool {
	_, ok := m.sequences[id]
	return ok
}

// GetSequence returns the live sequence for id. Caller holds the mutex.
func (m *Manager) GetSequence(id uint64) (*Sequence, error) {
	s, ok := m.sequences[id]
	if !ok {
		return nil, status.Newf(status.SequenceMissing, "sequence %d does not exist", id)
	}
	return s, nil
}

// RemoveSequence deletes the entry for id. The sequence's own mutex must no
// longer be held by anyone. Caller holds the manager mutex.
func (m *Manager) RemoveSequence(id uint64) error {
	if _, ok := m.sequences[id]; !ok {
		return status.Newf(status.SequenceMissing, "sequence %d does not exist", id)
	}
	delete(m.sequences, id)
	return nil
}

// RemoveIdleSequences deletes every sequence whose idle flag is set and
// returns how many were removed. Locks internally; reaper-facing.
func (m *Manager) RemoveIdleSequences() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sequences {
		if s.IsIdle() {
			delete(m.sequences, id)
			removed++
		}
	}
	return removed
}

// MarkAllIdle sets the idle flag on every live sequence. Locks internally;
// reaper-facing.
func (m *Manager) MarkAllIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sequences {
		s.MarkIdle()
	}
}
