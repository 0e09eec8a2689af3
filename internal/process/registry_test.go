// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package process

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeHandle struct {
	terminated atomic.Int32
	err        error
	hold       chan struct{} // Terminate blocks until closed when set
}

func (h *fakeHandle) Terminate(grace time.Duration) error {
	h.terminated.Add(1)
	if h.hold != nil {
		<-h.hold
	}
	return h.err
}

func waitTerminated(t *testing.T, h *fakeHandle, want int32) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.terminated.Load() < want {
		if time.Now().After(deadline) {
			t.Fatalf("terminations = %d, want %d", h.terminated.Load(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRegistryTerminateAll(t *testing.T) {
	r := NewRegistry(time.Second, nil)
	a, b, c := &fakeHandle{}, &fakeHandle{}, &fakeHandle{err: errors.New("already gone")}
	for _, h := range []*fakeHandle{a, b, c} {
		if err := r.Register(h); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	r.Unregister(b)

	if n := r.TerminateAll(); n != 2 {
		t.Errorf("TerminateAll = %d, want 2", n)
	}
	if a.terminated.Load() != 1 || c.terminated.Load() != 1 {
		t.Errorf("terminations a=%d c=%d, want 1 each", a.terminated.Load(), c.terminated.Load())
	}
	if b.terminated.Load() != 0 {
		t.Errorf("unregistered handle was terminated")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d after TerminateAll", r.Len())
	}

	// a second pass finds nothing
	if n := r.TerminateAll(); n != 0 {
		t.Errorf("second TerminateAll = %d", n)
	}
	if a.terminated.Load() != 1 {
		t.Error("handle terminated twice")
	}
}

func TestRegistryUnregisterUnknown(t *testing.T) {
	r := NewRegistry(time.Second, nil)
	r.Unregister(&fakeHandle{})
	if r.Len() != 0 {
		t.Errorf("Len = %d", r.Len())
	}
}

func TestRegistryRegisterAfterClose(t *testing.T) {
	r := NewRegistry(time.Second, nil)
	r.TerminateAll()
	if !r.Closed() {
		t.Fatal("registry should be closed")
	}

	h := &fakeHandle{}
	if err := r.Register(h); !errors.Is(err, ErrRegistryClosed) {
		t.Fatalf("Register = %v, want ErrRegistryClosed", err)
	}
	waitTerminated(t, h, 1)
	if r.Len() != 0 {
		t.Errorf("late handle tracked")
	}
}

func TestRegistryRegisterAfterCloseDoesNotBlock(t *testing.T) {
	r := NewRegistry(time.Hour, nil)
	r.TerminateAll()

	h := &fakeHandle{hold: make(chan struct{})}
	defer close(h.hold)

	done := make(chan error, 1)
	go func() { done <- r.Register(h) }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrRegistryClosed) {
			t.Fatalf("Register = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Register blocked on termination of a late handle")
	}
	waitTerminated(t, h, 1)
}

func TestRegistryLateRealProcessReapedQuickly(t *testing.T) {
	p, err := New(helperConfig("sleep"))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(time.Minute, nil)
	r.TerminateAll()

	start := time.Now()
	if err := r.Register(p); !errors.Is(err, ErrRegistryClosed) {
		t.Fatalf("Register = %v", err)
	}
	if err := p.Wait(); err == nil {
		t.Error("terminated process reported clean exit")
	}
	if elapsed := time.Since(start); elapsed > 20*time.Second {
		t.Errorf("late process took %s to exit", elapsed)
	}
}

func TestRegistryConcurrentTerminate(t *testing.T) {
	const workers = 64
	r := NewRegistry(10*time.Millisecond, nil)
	handles := make([]*fakeHandle, workers)
	unregistered := make([]atomic.Bool, workers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		handles[i] = &fakeHandle{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if err := r.Register(handles[i]); err != nil {
				return
			}
			if i%2 == 0 {
				time.Sleep(time.Millisecond)
			}
			r.Unregister(handles[i])
			unregistered[i].Store(true)
		}(i)
	}

	close(start)
	time.Sleep(500 * time.Microsecond)
	r.TerminateAll()
	wg.Wait()

	for i, h := range handles {
		n := h.terminated.Load()
		if n > 1 {
			t.Errorf("handle %d terminated %d times", i, n)
		}
		if n == 0 && !unregistered[i].Load() {
			t.Errorf("handle %d neither terminated nor finished", i)
		}
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestRegistryWithRealProcess(t *testing.T) {
	p, errc := startAndWaitReady(t, "sleep")
	r := NewRegistry(5*time.Second, nil)
	if err := r.Register(p); err != nil {
		t.Fatal(err)
	}
	if st := r.Statuses(); len(st) != 1 || st[0].Pid == 0 {
		t.Errorf("Statuses = %+v", st)
	}

	r.TerminateAll()

	select {
	case err := <-errc:
		if err == nil {
			t.Error("terminated process reported clean exit")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("process still running after TerminateAll")
	}
	r.Unregister(p)
}
