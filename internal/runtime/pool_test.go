package runtime

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"statefuld/pkg/types"
)

func compileStub(t *testing.T) CompiledModel {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "m.xml")
	if err := os.WriteFile(p, []byte("model"), 0o644); err != nil {
		t.Fatalf("write model file: %v", err)
	}
	cm, err := NewStubRuntime().Compile(
		types.Model{Name: "echo", Version: 1, Path: p, Stateful: true, LowLatencyTransformation: true},
		CompileOptions{LowLatencyTransformation: true},
	)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return cm
}

func TestPoolSizeAndDefault(t *testing.T) {
	cm := compileStub(t)
	p, err := NewHandlePool(cm, 3)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if p.Size() != 3 {
		t.Fatalf("expected size 3, got %d", p.Size())
	}
	// Size 0 falls back to the runtime's recommendation.
	p2, err := NewHandlePool(cm, 0)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if p2.Size() != cm.OptimalHandleCount() {
		t.Fatalf("expected size %d, got %d", cm.OptimalHandleCount(), p2.Size())
	}
}

func TestAcquireReleaseAccounting(t *testing.T) {
	p, err := NewHandlePool(compileStub(t), 2)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	a := p.Acquire()
	b := p.Acquire()
	if p.InUse() != 2 {
		t.Fatalf("expected 2 in use, got %d", p.InUse())
	}
	if a.Handle == nil || b.Handle == nil {
		t.Fatalf("lease without handle")
	}
	if a.ID() == b.ID() {
		t.Fatalf("two concurrent leases share handle %d", a.ID())
	}
	a.Release()
	a.Release() // double release must not free a second slot
	if p.InUse() != 1 {
		t.Fatalf("expected 1 in use after release, got %d", p.InUse())
	}
	b.Release()
	if p.InUse() != 0 {
		t.Fatalf("expected 0 in use, got %d", p.InUse())
	}
}

func TestAcquireBlocksUntilFree(t *testing.T) {
	p, err := NewHandlePool(compileStub(t), 1)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	lease := p.Acquire()

	acquired := make(chan *LeasedHandle)
	go func() { acquired <- p.Acquire() }()

	select {
	case <-acquired:
		t.Fatalf("second acquire succeeded while handle was held")
	case <-time.After(50 * time.Millisecond):
	}

	lease.Release()
	select {
	case l := <-acquired:
		if l.WaitTime() <= 0 {
			t.Fatalf("expected non-zero wait time")
		}
		l.Release()
	case <-time.After(time.Second):
		t.Fatalf("second acquire did not proceed after release")
	}
}

func TestHandlesNeverSharedUnderLoad(t *testing.T) {
	p, err := NewHandlePool(compileStub(t), 2)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	var mu sync.Mutex
	held := map[int]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := p.Acquire()
			mu.Lock()
			if held[l.ID()] {
				t.Errorf("handle %d leased twice concurrently", l.ID())
			}
			held[l.ID()] = true
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			held[l.ID()] = false
			mu.Unlock()
			l.Release()
		}()
	}
	wg.Wait()
}
