// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

// Package batch finds the files of a run and drives them through a fixed
// pool of worker slots.
package batch

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ZSC714725/mnemosyne/internal/ffmpeg"
	"github.com/ZSC714725/mnemosyne/internal/logger"
	"github.com/ZSC714725/mnemosyne/internal/process"
	"github.com/ZSC714725/mnemosyne/internal/progress"
	"github.com/ZSC714725/mnemosyne/internal/transcode"

	"github.com/lithammer/shortuuid/v4"
)

// JobRunner runs one job to a terminal outcome.
type JobRunner interface {
	Run(ctx context.Context, job transcode.Job) transcode.Result
}

// RenderFunc draws the current progress. It is called from the poller
// goroutine only.
type RenderFunc func(workers []progress.WorkerProgress, total int)

// RunSummary is the outcome of one batch
type RunSummary struct {
	RunID       string             `json:"run_id"`
	Total       int                `json:"total"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	Elapsed     time.Duration      `json:"elapsed"`
	InputBytes  int64              `json:"input_bytes"`
	OutputBytes int64              `json:"output_bytes"`
	Results     []transcode.Result `json:"-"`
}

// Saved is the space freed by the run.
func (s RunSummary) Saved() int64 {
	return s.InputBytes - s.OutputBytes
}

// SchedulerConfig for a Scheduler. Runner is required.
type SchedulerConfig struct {
	Runner   JobRunner
	Workers  int
	Profile  ffmpeg.Profile
	Progress *progress.Aggregator
	Registry *process.Registry
	Interval time.Duration
	Render   RenderFunc
	Logger   logger.Logger
}

// Scheduler runs a queue of files on N persistent worker slots.
type Scheduler struct {
	runner   JobRunner
	workers  int
	profile  ffmpeg.Profile
	progress *progress.Aggregator
	registry *process.Registry
	interval time.Duration
	render   RenderFunc
	logger   logger.Logger
}

// NewScheduler creates a Scheduler
func NewScheduler(config SchedulerConfig) *Scheduler {
	s := &Scheduler{
		runner:   config.Runner,
		workers:  config.Workers,
		profile:  config.Profile,
		progress: config.Progress,
		registry: config.Registry,
		interval: config.Interval,
		render:   config.Render,
		logger:   config.Logger,
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.interval <= 0 {
		s.interval = 500 * time.Millisecond
	}
	if s.progress == nil {
		s.progress = progress.New()
	}
	if s.render == nil {
		s.render = func([]progress.WorkerProgress, int) {}
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	return s
}

// Slot returns the worker slot (1..workers) that runs queue index i.
func Slot(i, workers int) int {
	return i%workers + 1
}

// Run processes every file and blocks until each has reached a terminal
// outcome. Job failures never stop sibling jobs. When ctx is canceled
// the registry terminates every running encoder and files not yet started
// are counted as failed.
func (s *Scheduler) Run(ctx context.Context, files []File) RunSummary {
	start := time.Now()
	sum := RunSummary{RunID: shortuuid.New(), Total: len(files)}
	for _, f := range files {
		sum.InputBytes += f.Size
	}
	s.logger.Info("Run %s: %d files on %d workers", sum.RunID, len(files), s.workers)

	if s.registry != nil {
		stop := context.AfterFunc(ctx, func() {
			if n := s.registry.TerminateAll(); n > 0 {
				s.logger.Warn("Terminated %d running encoders", n)
			}
		})
		defer stop()
	}

	results := make([]transcode.Result, len(files))
	var wg sync.WaitGroup
	for w := 1; w <= s.workers && w <= len(files); w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := worker - 1; i < len(files); i += s.workers {
				if err := ctx.Err(); err != nil {
					results[i] = transcode.Result{
						Worker:  worker,
						Source:  files[i].Path,
						Outcome: transcode.Failed,
						Err:     fmt.Errorf("%w: %w", transcode.ErrCanceled, err),
					}
					continue
				}
				results[i] = s.runner.Run(ctx, transcode.Job{
					Worker:  worker,
					Source:  files[i].Path,
					Profile: s.profile,
				})
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
poll:
	for {
		select {
		case <-done:
			break poll
		case <-ticker.C:
			s.render(s.progress.List(), len(files))
		}
	}
	s.render(s.progress.List(), len(files))

	for _, r := range results {
		if r.Outcome == transcode.Success {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
	}
	for _, f := range files {
		if fi, err := os.Stat(f.Path); err == nil {
			sum.OutputBytes += fi.Size()
		}
	}
	sum.Results = results
	sum.Elapsed = time.Since(start)

	s.logger.Info("Run %s finished: %d succeeded, %d failed in %s", sum.RunID, sum.Succeeded, sum.Failed, sum.Elapsed.Round(time.Second))
	return sum
}
