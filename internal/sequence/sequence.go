// Package sequence implements the lifecycle of stateful-model sequences:
// per-sequence saved memory state, the per-model sequence manager, and the
// background reaper that evicts idle sequences.
package sequence

import (
	"sync"
	"sync/atomic"

	"statefuld/pkg/types"
)

// MemoryState maps state-slot names to saved tensor payloads. Keys are
// exactly the slot names the runtime reports for the loaded model.
type MemoryState map[string]*types.Tensor

// Sequence is one conversational session's saved hidden state. The mutex
// must be held for the whole duration any caller reads or writes the memory
// state. The idle flag is atomic so the reaper can inspect it without taking
// the sequence mutex.
type Sequence struct {
	mu          sync.Mutex
	id          uint64
	memoryState MemoryState
	idle        atomic.Bool
}

// NewSequence creates an empty sequence with the given id.
func NewSequence(id uint64) *Sequence {
	return &Sequence{id: id, memoryState: MemoryState{}}
}

// ID returns the sequence identifier. Never 0 for a managed sequence.
func (s *Sequence) ID() uint64 { return s.id }

// Lock acquires the sequence mutex. Ordering: a holder of the sequence
// mutex must not acquire the owning manager's mutex.
func (s *Sequence) Lock() { s.mu.Lock() }

// Unlock releases the sequence mutex.
func (s *Sequence) Unlock() { s.mu.Unlock() }

// GetMemoryState returns the saved state. Caller must hold the mutex.
func (s *Sequence) GetMemoryState() MemoryState { return s.memoryState }

// UpdateMemoryState replaces the saved state wholesale with the supplied
// pairs; previously present keys not in the new set are dropped. Caller must
// hold the mutex.
func (s *Sequence) UpdateMemoryState(state MemoryState) {
	s.memoryState = state
}

// MarkActive clears the idle flag; called by every request that obtains the
// sequence, before the manager mutex is released.
func (s *Sequence) MarkActive() { s.idle.Store(false) }

// MarkIdle sets the idle flag; called by the reaper at the end of each sweep.
func (s *Sequence) MarkIdle() { s.idle.Store(true) }

// IsIdle reports whether the sequence has not been touched since the last
// sweep marked it idle.
func (s *Sequence) IsIdle() bool { return s.idle.Load() }
