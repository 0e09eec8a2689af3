// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

// Package progress holds the live status of every worker slot. Workers
// write their own record; the display poller and the status API read
// point-in-time copies.
package progress

import (
	"sort"
	"sync"
	"time"
)

// MaxRunning is the highest percentage reported before a job is confirmed done.
const MaxRunning = 99.9

// StatusRetry marks a worker that is re-encoding on the software fallback.
const StatusRetry = "Retrying with CPU..."

// WorkerProgress is the status of one worker slot
type WorkerProgress struct {
	WorkerID    int       `json:"worker_id"`
	Filename    string    `json:"filename"`
	Percent     float64   `json:"percent"`
	FPS         string    `json:"fps"`
	Speed       string    `json:"speed"`
	SizeSummary string    `json:"size_summary"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Done reports whether the worker's current job has completed.
func (w WorkerProgress) Done() bool {
	return w.Percent >= 100
}

// Active reports whether the worker's current job is in flight.
func (w WorkerProgress) Active() bool {
	return w.Percent > 0 && w.Percent < 100
}

// Aggregator is the shared progress store, keyed by worker id.
type Aggregator struct {
	mu      sync.Mutex
	workers map[int]*WorkerProgress
	now     func() time.Time
}

// New creates an empty aggregator
func New() *Aggregator {
	return &Aggregator{
		workers: make(map[int]*WorkerProgress),
		now:     time.Now,
	}
}

// Update merges fields into the worker's record through fn. The record is
// created on first use and its start time recorded then.
func (a *Aggregator) Update(workerID int, fn func(w *WorkerProgress)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	w, ok := a.workers[workerID]
	if !ok {
		w = &WorkerProgress{WorkerID: workerID, FPS: "-", Speed: "0x", StartedAt: now}
		a.workers[workerID] = w
	}
	fn(w)
	w.WorkerID = workerID
	w.UpdatedAt = now
}

// Begin resets the worker's record for a new job.
func (a *Aggregator) Begin(workerID int, filename string) {
	a.Update(workerID, func(w *WorkerProgress) {
		*w = WorkerProgress{
			Filename:  filename,
			FPS:       "-",
			Speed:     "0x",
			StartedAt: a.now(),
		}
	})
}

// Advance raises the completion percentage, capped at MaxRunning. Lower
// values are ignored so the percentage never goes backwards within a job.
func (a *Aggregator) Advance(workerID int, percent float64) {
	if percent > MaxRunning {
		percent = MaxRunning
	}
	a.Update(workerID, func(w *WorkerProgress) {
		if percent > w.Percent && w.Percent < 100 {
			w.Percent = percent
		}
	})
}

// Rate stores the engine-reported throughput. Empty values keep the
// previous reading.
func (a *Aggregator) Rate(workerID int, fps, speed string) {
	a.Update(workerID, func(w *WorkerProgress) {
		if fps != "" {
			w.FPS = fps
		}
		if speed != "" {
			w.Speed = speed
		}
	})
}

// Retry resets the job's progress for a fallback attempt.
func (a *Aggregator) Retry(workerID int, status string) {
	a.Update(workerID, func(w *WorkerProgress) {
		w.Percent = 0
		w.FPS = "-"
		w.Speed = "0x"
		w.Status = status
		w.StartedAt = a.now()
	})
}

// Complete marks the job done with its size summary.
func (a *Aggregator) Complete(workerID int, summary string) {
	a.Update(workerID, func(w *WorkerProgress) {
		w.Percent = 100
		w.FPS = "0"
		w.Speed = "0"
		w.SizeSummary = summary
		w.Status = ""
	})
}

// Status sets a free-form status marker, e.g. "Failed".
func (a *Aggregator) Status(workerID int, status string) {
	a.Update(workerID, func(w *WorkerProgress) {
		w.Status = status
	})
}

// Remove drops a worker's record.
func (a *Aggregator) Remove(workerID int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.workers, workerID)
}

// Get returns a copy of one worker's record.
func (a *Aggregator) Get(workerID int) (WorkerProgress, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.workers[workerID]
	if !ok {
		return WorkerProgress{}, false
	}
	return *w, true
}

// Snapshot returns a point-in-time copy of every record.
func (a *Aggregator) Snapshot() map[int]WorkerProgress {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[int]WorkerProgress, len(a.workers))
	for id, w := range a.workers {
		out[id] = *w
	}
	return out
}

// List returns the snapshot ordered by worker id.
func (a *Aggregator) List() []WorkerProgress {
	snap := a.Snapshot()
	out := make([]WorkerProgress, 0, len(snap))
	for _, w := range snap {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out
}
