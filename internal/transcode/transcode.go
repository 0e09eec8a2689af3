// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

// Package transcode runs one file through encode, verify, swap and
// timestamp restore. A source file is either replaced by a verified
// encode or left untouched at its path.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ZSC714725/mnemosyne/internal/ffmpeg"
	"github.com/ZSC714725/mnemosyne/internal/ffmpeg/parse"
	"github.com/ZSC714725/mnemosyne/internal/logger"
	"github.com/ZSC714725/mnemosyne/internal/process"
	"github.com/ZSC714725/mnemosyne/internal/progress"
	"github.com/ZSC714725/mnemosyne/internal/task"
)

var (
	ErrSetup    = errors.New("setup failed")
	ErrEncode   = errors.New("encode failed")
	ErrVerify   = errors.New("verification failed")
	ErrSwap     = errors.New("swap failed")
	ErrCanceled = errors.New("canceled")
)

// DefaultDuration is assumed when the source cannot be probed.
const DefaultDuration = 1.0

// Encoder is the part of ffmpeg.FFmpeg a Runner needs.
type Encoder interface {
	New(config ffmpeg.ProcessConfig) (process.Process, error)
	Probe(ctx context.Context, path string) (ffmpeg.Media, error)
}

// Outcome of a job
type Outcome int

const (
	Failed Outcome = iota
	Success
)

func (o Outcome) String() string {
	if o == Success {
		return "success"
	}
	return "failed"
}

// Job is one file assigned to a worker slot.
type Job struct {
	Worker  int
	Source  string
	Profile ffmpeg.Profile
}

// Result of one job. Err is nil on Success.
type Result struct {
	JobID      string
	Worker     int
	Source     string
	Codec      string
	Outcome    Outcome
	Err        error
	Attempts   int
	InputSize  int64
	OutputSize int64
}

// Config for a Runner. FFmpeg is required.
type Config struct {
	FFmpeg           Encoder
	Registry         *process.Registry
	Progress         *progress.Aggregator
	Jobs             task.Store
	Settings         ffmpeg.Settings
	Verify           bool
	PreserveMetadata bool
	StaleTimeout     time.Duration
	Logger           logger.Logger
}

// Runner executes jobs. It is safe for concurrent use by many workers as
// long as no two of them run the same source at once.
type Runner struct {
	ffmpeg           Encoder
	registry         *process.Registry
	progress         *progress.Aggregator
	jobs             task.Store
	settings         ffmpeg.Settings
	verify           bool
	preserveMetadata bool
	staleTimeout     time.Duration
	logger           logger.Logger
}

// NewRunner creates a Runner, filling in private collaborators for those
// left nil.
func NewRunner(config Config) *Runner {
	r := &Runner{
		ffmpeg:           config.FFmpeg,
		registry:         config.Registry,
		progress:         config.Progress,
		jobs:             config.Jobs,
		settings:         config.Settings,
		verify:           config.Verify,
		preserveMetadata: config.PreserveMetadata,
		staleTimeout:     config.StaleTimeout,
		logger:           config.Logger,
	}
	if r.logger == nil {
		r.logger = logger.Nop()
	}
	if r.registry == nil {
		r.registry = process.NewRegistry(5*time.Second, r.logger)
	}
	if r.progress == nil {
		r.progress = progress.New()
	}
	if r.jobs == nil {
		r.jobs = task.NewStore(r.logger)
	}
	return r
}

// Run executes the job to a terminal outcome. It never panics on job
// failure and never returns an error past the Result.
func (r *Runner) Run(ctx context.Context, job Job) Result {
	res := Result{Worker: job.Worker, Source: job.Source}
	name := filepath.Base(job.Source)

	rec, err := r.jobs.Add(job.Source, job.Worker)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrSetup, err)
		r.logger.Error("[Worker %d] %s: %v", job.Worker, name, res.Err)
		return res
	}
	res.JobID = rec.ID

	r.progress.Begin(job.Worker, name)
	r.logger.Info("[Worker %d] Started processing: %s", job.Worker, name)

	if err := r.run(ctx, rec.ID, job, &res); err != nil {
		res.Outcome = Failed
		res.Err = err
		r.jobs.Fail(rec.ID, err)
		r.progress.Status(job.Worker, "Failed")
		r.logger.Error("[Worker %d] %s: %v", job.Worker, name, err)
		return res
	}

	res.Outcome = Success
	return res
}

func (r *Runner) run(ctx context.Context, id string, job Job, res *Result) error {
	src := job.Source
	tmp := TempPath(src, job.Worker)
	defer r.removeTemp(tmp)

	fi, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrSetup, src)
	}
	res.InputSize = fi.Size()

	if _, err := os.Lstat(BackupPath(src)); err == nil {
		return fmt.Errorf("%w: %s already exists", ErrSwap, BackupPath(src))
	}

	stamps, stampErr := CaptureTimes(src)
	if stampErr != nil {
		r.logger.Warn("[Worker %d] capture timestamps of %s: %v", job.Worker, src, stampErr)
	}
	r.jobs.Update(id, func(j *task.Job) { j.InputSize = fi.Size() })

	duration := r.probeDuration(ctx, src)

	profile, err := r.encodeWithFallback(ctx, id, job, tmp, duration, res)
	if err != nil {
		return err
	}
	res.Codec = profile.Codec

	out, err := os.Stat(tmp)
	if err != nil {
		return fmt.Errorf("%w: no output: %w", ErrEncode, err)
	}

	if r.verify {
		r.jobs.Transition(id, task.Verifying)
		if err := r.verifyOutput(ctx, src, tmp); err != nil {
			return err
		}
	}

	if r.canceled(ctx) {
		return ErrCanceled
	}

	summary := SizeSummary(res.InputSize, out.Size())

	r.jobs.Transition(id, task.Swapping)
	err = Swap(src, tmp, func(path string) {
		if !r.preserveMetadata || stampErr != nil {
			return
		}
		r.jobs.Transition(id, task.Restoring)
		if err := stamps.Restore(path); err != nil {
			r.logger.Warn("[Worker %d] restore timestamps of %s: %v", job.Worker, path, err)
		}
	}, r.logger)
	if err != nil {
		return err
	}

	if final, err := os.Stat(src); err == nil {
		res.OutputSize = final.Size()
	}
	r.jobs.Update(id, func(j *task.Job) { j.OutputSize = res.OutputSize })
	r.jobs.Transition(id, task.Done)
	r.progress.Complete(job.Worker, summary)
	r.logger.Info("[Worker %d] Completed: %s (%s)", job.Worker, filepath.Base(src), summary)
	return nil
}

// encodeWithFallback tries the job's profile and, when that is a hardware
// encoder whose process fails, the software profile once.
func (r *Runner) encodeWithFallback(ctx context.Context, id string, job Job, tmp string, duration float64, res *Result) (ffmpeg.Profile, error) {
	profiles := []ffmpeg.Profile{job.Profile}
	if !job.Profile.IsSoftware() {
		profiles = append(profiles, ffmpeg.SoftwareProfile)
	}

	var err error
	for i, p := range profiles {
		if i > 0 {
			r.logger.Warn("[Worker %d] Hardware encoding failed for %s, falling back to CPU", job.Worker, filepath.Base(job.Source))
			r.jobs.Transition(id, task.FallbackRetry)
			r.progress.Retry(job.Worker, progress.StatusRetry)
		}
		r.jobs.Transition(id, task.Encoding)
		r.jobs.Update(id, func(j *task.Job) { j.Codec = p.Codec })
		res.Attempts++

		err = r.encode(ctx, job.Worker, p, job.Source, tmp, duration)
		if err == nil {
			return p, nil
		}
		r.removeTemp(tmp)
		if !errors.Is(err, ErrEncode) {
			break
		}
	}
	return ffmpeg.Profile{}, err
}

func (r *Runner) encode(ctx context.Context, worker int, p ffmpeg.Profile, src, tmp string, duration float64) error {
	if r.canceled(ctx) {
		return ErrCanceled
	}

	proc, err := r.ffmpeg.New(ffmpeg.ProcessConfig{
		Args:         ffmpeg.EncodeArgs(p, r.settings, src, tmp),
		StaleTimeout: r.staleTimeout,
		Logger:       r.logger,
		OnLine: func(line string) {
			r.track(worker, duration, line)
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}

	if err := proc.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}
	if err := r.registry.Register(proc); err != nil {
		proc.Wait()
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}

	waitErr := proc.Wait()
	r.registry.Unregister(proc)

	if r.canceled(ctx) {
		return ErrCanceled
	}
	if waitErr != nil {
		lines := proc.Log()
		if len(lines) > 5 {
			lines = lines[len(lines)-5:]
		}
		for _, l := range lines {
			r.logger.Debug("[Worker %d] %s: %s", worker, p.Codec, l.Data)
		}
		return fmt.Errorf("%w: %s: %w", ErrEncode, p.Codec, waitErr)
	}
	return nil
}

// track applies one status line to the worker's progress.
func (r *Runner) track(worker int, duration float64, line string) {
	ev := parse.Line(line)
	if ev.Kind == parse.Unrecognized {
		return
	}
	if ev.Kind == parse.TimeUpdate {
		r.progress.Advance(worker, ev.Elapsed.Seconds()/duration*100)
	}
	if ev.FPS != "" || ev.Speed != "" {
		r.progress.Rate(worker, ev.FPS, ev.Speed)
	}
}

func (r *Runner) probeDuration(ctx context.Context, path string) float64 {
	m, err := r.ffmpeg.Probe(ctx, path)
	if err != nil || m.Duration <= 0 {
		r.logger.Debug("probe %s: %v, assuming %.1fs", path, err, DefaultDuration)
		return DefaultDuration
	}
	return m.Duration
}

func (r *Runner) verifyOutput(ctx context.Context, src, tmp string) error {
	fi, err := os.Stat(tmp)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerify, err)
	}
	if fi.Size() < MinOutputSize {
		return fmt.Errorf("%w: output is only %d bytes", ErrVerify, fi.Size())
	}

	in, err := r.ffmpeg.Probe(ctx, src)
	if err != nil {
		return fmt.Errorf("%w: probe source: %w", ErrVerify, err)
	}
	out, err := r.ffmpeg.Probe(ctx, tmp)
	if err != nil {
		return fmt.Errorf("%w: probe output: %w", ErrVerify, err)
	}
	return Compare(in, out)
}

func (r *Runner) canceled(ctx context.Context) bool {
	return ctx.Err() != nil || r.registry.Closed()
}

func (r *Runner) removeTemp(tmp string) {
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		r.logger.Warn("remove %s: %v", tmp, err)
	}
}
