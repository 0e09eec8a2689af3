// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package task

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ZSC714725/mnemosyne/internal/logger"

	"github.com/lithammer/shortuuid/v4"
)

// Store keeps the job records of one run in memory. Records are handed out
// as copies; every mutation goes through the store.
type Store interface {
	Add(source string, worker int) (Job, error)
	Get(id string) (Job, error)
	List(states ...State) []Job
	Transition(id string, to State) error
	Update(id string, fn func(j *Job)) error
	Fail(id string, cause error) error
}

type store struct {
	logger logger.Logger
	jobs   map[string]*Job
	active map[string]string // source -> job id
	mu     sync.RWMutex
}

// NewStore creates a job store
func NewStore(log logger.Logger) Store {
	if log == nil {
		log = logger.Nop()
	}
	return &store{
		logger: log,
		jobs:   make(map[string]*Job),
		active: make(map[string]string),
	}
}

// Add creates a queued job. A source may have only one non-terminal job.
func (s *store) Add(source string, worker int) (Job, error) {
	if len(source) == 0 {
		return Job{}, ErrInvalidSource
	}
	key := filepath.Clean(source)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.active[key]; ok {
		return Job{}, fmt.Errorf("%w: %s (job %s)", ErrJobExists, source, id)
	}

	now := time.Now().Unix()
	j := &Job{
		ID:        shortuuid.New(),
		Source:    source,
		Worker:    worker,
		State:     Queued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[j.ID] = j
	s.active[key] = j.ID
	return *j, nil
}

func (s *store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *j, nil
}

// List returns the jobs in the given states, all jobs when none is given,
// oldest first.
func (s *store) List(states ...State) []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if len(states) > 0 {
			found := false
			for _, st := range states {
				if j.State == st {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, *j)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt != out[b].CreatedAt {
			return out[a].CreatedAt < out[b].CreatedAt
		}
		return out[a].Source < out[b].Source
	})
	return out
}

func (s *store) Transition(id string, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(id, to)
}

func (s *store) transition(id string, to State) error {
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !CanTransition(j.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, to)
	}

	s.logger.Debug("job %s state %s -> %s", id, j.State, to)
	j.State = to
	j.UpdatedAt = time.Now().Unix()
	if to == Encoding {
		j.Attempts++
	}
	if to.IsTerminal() {
		delete(s.active, filepath.Clean(j.Source))
	}
	return nil
}

// Update changes informational fields. State, ID and Source are kept.
func (s *store) Update(id string, fn func(j *Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	state, source := j.State, j.Source
	fn(j)
	j.ID, j.State, j.Source = id, state, source
	j.UpdatedAt = time.Now().Unix()
	return nil
}

// Fail moves the job to Failed and records the cause.
func (s *store) Fail(id string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transition(id, Failed); err != nil {
		return err
	}
	if cause != nil {
		s.jobs[id].Error = cause.Error()
	}
	return nil
}
