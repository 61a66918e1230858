package runtime

import (
	"fmt"
	"time"
)

// HandlePool is a fixed-capacity pool of execution handles pre-created
// against one compiled model. Acquisition blocks until a handle is free and
// is FIFO: waiters receive handles in arrival order.
type HandlePool struct {
	handles []InferHandle
	free    chan int
}

// NewHandlePool creates size handles against the compiled model.
func NewHandlePool(cm CompiledModel, size int) (*HandlePool, error) {
	if size <= 0 {
		size = cm.OptimalHandleCount()
	}
	if size <= 0 {
		size = 1
	}
	p := &HandlePool{
		handles: make([]InferHandle, size),
		free:    make(chan int, size),
	}
	for i := 0; i < size; i++ {
		h, err := cm.NewHandle()
		if err != nil {
			return nil, fmt.Errorf("create handle %d: %w", i, err)
		}
		p.handles[i] = h
		p.free <- i
	}
	return p, nil
}

// Size returns the pool capacity.
func (p *HandlePool) Size() int { return cap(p.free) }

// InUse returns the number of currently leased handles.
func (p *HandlePool) InUse() int { return cap(p.free) - len(p.free) }

// Acquire blocks until a handle is free and transfers its ownership to the
// returned lease. Acquisition is not interruptible; the lease must be
// released on every exit path.
func (p *HandlePool) Acquire() *LeasedHandle {
	start := time.Now()
	id := <-p.free
	return &LeasedHandle{
		Handle: p.handles[id],
		id:     id,
		wait:   time.Since(start),
		pool:   p,
	}
}

// LeasedHandle is exclusive ownership of one pool slot. Release returns the
// slot; it is safe to call more than once.
type LeasedHandle struct {
	Handle InferHandle

	id       int
	wait     time.Duration
	pool     *HandlePool
	released bool
}

// ID identifies the underlying handle, for metrics and log correlation.
func (l *LeasedHandle) ID() int { return l.id }

// WaitTime is how long the acquirer waited for a free handle.
func (l *LeasedHandle) WaitTime() time.Duration { return l.wait }

// Release returns the handle to the pool.
func (l *LeasedHandle) Release() {
	if l.released {
		return
	}
	l.released = true
	l.pool.free <- l.id
}
