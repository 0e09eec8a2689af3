// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package process

import (
	"errors"
	"sync"
	"time"
)

// ErrRegistryClosed is returned by Register after TerminateAll has run.
var ErrRegistryClosed = errors.New("process registry closed")

// Handle is anything the registry can stop.
type Handle interface {
	Terminate(grace time.Duration) error
}

// Registry tracks in-flight encoder processes so one cancellation can stop
// all of them. It never owns the processes: Unregister only forgets.
type Registry struct {
	mu      sync.Mutex
	handles map[Handle]struct{}
	closed  bool
	grace   time.Duration
	logger  Logger
}

// NewRegistry creates a registry that gives each process grace to exit
// before killing it.
func NewRegistry(grace time.Duration, log Logger) *Registry {
	if log == nil {
		log = &nopLogger{}
	}
	return &Registry{
		handles: make(map[Handle]struct{}),
		grace:   grace,
		logger:  log,
	}
}

// Register starts tracking h. After TerminateAll the registry is closed:
// termination of h starts in the background and ErrRegistryClosed is
// returned, so the caller can go on to reap it.
func (r *Registry) Register(h Handle) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		go func() {
			if err := h.Terminate(r.grace); err != nil {
				r.logger.Error("terminate late process: %v", err)
			}
		}()
		return ErrRegistryClosed
	}
	r.handles[h] = struct{}{}
	r.mu.Unlock()
	return nil
}

// Unregister stops tracking h. Unknown handles are ignored.
func (r *Registry) Unregister(h Handle) {
	r.mu.Lock()
	delete(r.handles, h)
	r.mu.Unlock()
}

// Len returns the number of tracked handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Closed reports whether TerminateAll has run.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Statuses returns the status of every tracked handle that exposes one.
func (r *Registry) Statuses() []Status {
	r.mu.Lock()
	handles := make([]Handle, 0, len(r.handles))
	for h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(handles))
	for _, h := range handles {
		if p, ok := h.(interface{ Status() Status }); ok {
			out = append(out, p.Status())
		}
	}
	return out
}

// TerminateAll closes the registry and terminates every tracked handle in
// parallel, returning how many were signalled. Each handle leaves the set
// before it is terminated, so none is terminated twice.
func (r *Registry) TerminateAll() int {
	r.mu.Lock()
	r.closed = true
	handles := make([]Handle, 0, len(r.handles))
	for h := range r.handles {
		handles = append(handles, h)
	}
	r.handles = make(map[Handle]struct{})
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h Handle) {
			defer wg.Done()
			if err := h.Terminate(r.grace); err != nil {
				r.logger.Error("terminate: %v", err)
			}
		}(h)
	}
	wg.Wait()

	return len(handles)
}
