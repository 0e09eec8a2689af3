// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package transcode

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ZSC714725/mnemosyne/internal/ffmpeg"
	"github.com/ZSC714725/mnemosyne/internal/process"
	"github.com/ZSC714725/mnemosyne/internal/progress"
	"github.com/ZSC714725/mnemosyne/internal/task"
)

// fakeEncoder stands in for ffmpeg: each process writes outSize bytes to
// its output path and exits according to fail / block.
type fakeEncoder struct {
	mu       sync.Mutex
	input    ffmpeg.Media
	output   ffmpeg.Media
	probeErr error
	outSize  int
	fail     map[string]bool
	block    bool
	lines    []string
	codecs   []string
	started  chan struct{}
}

func newFakeEncoder() *fakeEncoder {
	return &fakeEncoder{
		input:   ffmpeg.Media{Duration: 10, Frames: 300},
		output:  ffmpeg.Media{Duration: 10.3, Frames: 295},
		outSize: 15000,
		fail:    map[string]bool{},
		lines: []string{
			"frame=100", "fps=25.0", "out_time=00:00:02.500000", "speed=2.5x",
			"out_time=00:00:07.500000", "progress=continue",
			"out_time=00:00:11.000000", "progress=end",
		},
		started: make(chan struct{}, 4),
	}
}

func (f *fakeEncoder) New(cfg ffmpeg.ProcessConfig) (process.Process, error) {
	codec := ""
	for i, a := range cfg.Args {
		if a == "-c:v" && i+1 < len(cfg.Args) {
			codec = cfg.Args[i+1]
		}
	}
	f.mu.Lock()
	f.codecs = append(f.codecs, codec)
	p := &fakeProcess{
		out:    cfg.Args[len(cfg.Args)-1],
		size:   f.outSize,
		lines:  f.lines,
		onLine: cfg.OnLine,
		fail:   f.fail[codec],
		block:  f.block,
		term:   make(chan struct{}),
	}
	f.mu.Unlock()
	p.started = f.started
	return p, nil
}

func (f *fakeEncoder) Probe(ctx context.Context, path string) (ffmpeg.Media, error) {
	if f.probeErr != nil {
		return ffmpeg.Media{Duration: -1, Frames: -1}, f.probeErr
	}
	if strings.HasPrefix(filepath.Base(path), TempPrefix) {
		return f.output, nil
	}
	return f.input, nil
}

func (f *fakeEncoder) attempted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.codecs...)
}

type fakeProcess struct {
	out     string
	size    int
	lines   []string
	onLine  func(string)
	fail    bool
	block   bool
	started chan struct{}
	term    chan struct{}
	once    sync.Once
}

func (p *fakeProcess) Start() error {
	if err := os.WriteFile(p.out, bytes.Repeat([]byte{'x'}, p.size), 0o644); err != nil {
		return err
	}
	p.started <- struct{}{}
	return nil
}

func (p *fakeProcess) Wait() error {
	for _, l := range p.lines {
		p.onLine(l)
	}
	if p.block {
		<-p.term
		return &process.ExitError{Code: -1, Signaled: true}
	}
	if p.fail {
		return &process.ExitError{Code: 1}
	}
	return nil
}

func (p *fakeProcess) Terminate(grace time.Duration) error {
	p.once.Do(func() { close(p.term) })
	return nil
}

func (p *fakeProcess) Status() process.Status { return process.Status{State: "running"} }
func (p *fakeProcess) IsRunning() bool        { return true }
func (p *fakeProcess) Log() []process.Line    { return []process.Line{{Data: "encoder error"}} }

type fixture struct {
	dir      string
	src      string
	original []byte
	enc      *fakeEncoder
	agg      *progress.Aggregator
	reg      *process.Registry
	jobs     task.Store
	runner   *Runner
}

func newFixture(t *testing.T, verify bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "holiday.mp4")
	original := bytes.Repeat([]byte("orig"), 5000)
	if err := os.WriteFile(src, original, 0o644); err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		dir:      dir,
		src:      src,
		original: original,
		enc:      newFakeEncoder(),
		agg:      progress.New(),
		reg:      process.NewRegistry(time.Second, nil),
		jobs:     task.NewStore(nil),
	}
	f.runner = NewRunner(Config{
		FFmpeg:           f.enc,
		Registry:         f.reg,
		Progress:         f.agg,
		Jobs:             f.jobs,
		Settings:         ffmpeg.Settings{TargetHeight: 480, TargetFPS: 30, VideoBitrate: "800k", AudioBitrate: "128k"},
		Verify:           verify,
		PreserveMetadata: true,
	})
	return f
}

// assertIntact checks the source is untouched and nothing was left behind.
func (f *fixture) assertIntact(t *testing.T) {
	t.Helper()
	got, err := os.ReadFile(f.src)
	if err != nil {
		t.Fatalf("source missing: %v", err)
	}
	if !bytes.Equal(got, f.original) {
		t.Error("source content changed")
	}
	f.assertNoLeftovers(t)
}

func (f *fixture) assertNoLeftovers(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != filepath.Base(f.src) {
			t.Errorf("leftover file %s", e.Name())
		}
	}
}

func TestRunSuccess(t *testing.T) {
	f := newFixture(t, true)
	mtime := time.Unix(1600000000, 0)
	if err := os.Chtimes(f.src, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	res := f.runner.Run(context.Background(), Job{Worker: 1, Source: f.src, Profile: ffmpeg.SoftwareProfile})
	if res.Outcome != Success || res.Err != nil {
		t.Fatalf("Run = %+v", res)
	}
	if res.InputSize != int64(len(f.original)) || res.OutputSize != 15000 || res.Attempts != 1 {
		t.Errorf("sizes/attempts: %+v", res)
	}

	fi, err := os.Stat(f.src)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != 15000 {
		t.Errorf("source size = %d, want the encode output", fi.Size())
	}
	if !fi.ModTime().Equal(mtime) {
		t.Errorf("mtime = %v, want %v", fi.ModTime(), mtime)
	}
	f.assertNoLeftovers(t)

	w, _ := f.agg.Get(1)
	if w.Percent != 100 || w.SizeSummary == "" || w.Filename != "holiday.mp4" {
		t.Errorf("progress = %+v", w)
	}
	j, _ := f.jobs.Get(res.JobID)
	if j.State != task.Done || j.Codec != "libx264" {
		t.Errorf("job = %+v", j)
	}
	if f.reg.Len() != 0 {
		t.Errorf("registry still tracks %d handles", f.reg.Len())
	}
}

func TestFallbackToSoftwareOnce(t *testing.T) {
	f := newFixture(t, true)
	f.enc.fail["h264_nvenc"] = true

	res := f.runner.Run(context.Background(), Job{Worker: 2, Source: f.src, Profile: ffmpeg.Profile{Codec: "h264_nvenc"}})
	if res.Outcome != Success {
		t.Fatalf("Run = %+v", res)
	}
	if got := f.enc.attempted(); len(got) != 2 || got[0] != "h264_nvenc" || got[1] != "libx264" {
		t.Errorf("attempted %v", got)
	}
	if res.Codec != "libx264" || res.Attempts != 2 {
		t.Errorf("res = %+v", res)
	}
	j, _ := f.jobs.Get(res.JobID)
	if j.Attempts != 2 || j.State != task.Done {
		t.Errorf("job = %+v", j)
	}
}

func TestSecondFailureIsTerminal(t *testing.T) {
	f := newFixture(t, true)
	f.enc.fail["h264_qsv"] = true
	f.enc.fail["libx264"] = true

	res := f.runner.Run(context.Background(), Job{Worker: 1, Source: f.src, Profile: ffmpeg.Profile{Codec: "h264_qsv"}})
	if res.Outcome != Failed || !errors.Is(res.Err, ErrEncode) {
		t.Fatalf("Run = %+v", res)
	}
	if got := f.enc.attempted(); len(got) != 2 {
		t.Errorf("attempted %v, want exactly one fallback", got)
	}
	f.assertIntact(t)

	j, _ := f.jobs.Get(res.JobID)
	if j.State != task.Failed || j.Error == "" {
		t.Errorf("job = %+v", j)
	}
}

func TestSoftwareFailureDoesNotRetry(t *testing.T) {
	f := newFixture(t, true)
	f.enc.fail["libx264"] = true

	res := f.runner.Run(context.Background(), Job{Worker: 1, Source: f.src, Profile: ffmpeg.SoftwareProfile})
	if res.Outcome != Failed {
		t.Fatalf("Run = %+v", res)
	}
	if got := f.enc.attempted(); len(got) != 1 {
		t.Errorf("attempted %v", got)
	}
	f.assertIntact(t)
}

func TestVerificationFailureLeavesSource(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *fakeEncoder)
	}{
		{"duration drift", func(e *fakeEncoder) { e.output = ffmpeg.Media{Duration: 13.5, Frames: 295} }},
		{"frame drift", func(e *fakeEncoder) { e.output = ffmpeg.Media{Duration: 10, Frames: 100} }},
		{"tiny output", func(e *fakeEncoder) { e.outSize = 100 }},
		{"probe failure", func(e *fakeEncoder) { e.probeErr = errors.New("ffprobe crashed") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			tt.mutate(f.enc)

			res := f.runner.Run(context.Background(), Job{Worker: 1, Source: f.src, Profile: ffmpeg.SoftwareProfile})
			if res.Outcome != Failed || !errors.Is(res.Err, ErrVerify) {
				t.Fatalf("Run = %+v", res)
			}
			f.assertIntact(t)
		})
	}
}

func TestVerificationDisabledSkipsProbeChecks(t *testing.T) {
	f := newFixture(t, false)
	f.enc.output = ffmpeg.Media{Duration: 99, Frames: 1}

	res := f.runner.Run(context.Background(), Job{Worker: 1, Source: f.src, Profile: ffmpeg.SoftwareProfile})
	if res.Outcome != Success {
		t.Fatalf("Run = %+v", res)
	}
}

func TestCancelMidEncode(t *testing.T) {
	f := newFixture(t, true)
	f.enc.block = true
	f.enc.fail["h264_nvenc"] = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		done <- f.runner.Run(ctx, Job{Worker: 1, Source: f.src, Profile: ffmpeg.Profile{Codec: "h264_nvenc"}})
	}()

	select {
	case <-f.enc.started:
	case <-time.After(5 * time.Second):
		t.Fatal("encoder never started")
	}
	// the temp file exists while the encode is in flight
	if _, err := os.Stat(TempPath(f.src, 1)); err != nil {
		t.Fatalf("temp output missing mid-encode: %v", err)
	}

	cancel()
	f.reg.TerminateAll()

	var res Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if res.Outcome != Failed || !errors.Is(res.Err, ErrCanceled) {
		t.Fatalf("Run = %+v", res)
	}
	if got := f.enc.attempted(); len(got) != 1 {
		t.Errorf("fallback attempted after cancel: %v", got)
	}
	f.assertIntact(t)
}

func TestDuplicateSourceRejected(t *testing.T) {
	f := newFixture(t, true)
	if _, err := f.jobs.Add(f.src, 9); err != nil {
		t.Fatal(err)
	}
	res := f.runner.Run(context.Background(), Job{Worker: 1, Source: f.src, Profile: ffmpeg.SoftwareProfile})
	if res.Outcome != Failed || !errors.Is(res.Err, ErrSetup) || !errors.Is(res.Err, task.ErrJobExists) {
		t.Fatalf("Run = %+v", res)
	}
	if len(f.enc.attempted()) != 0 {
		t.Error("encoder started for a duplicate job")
	}
}

func TestMissingSource(t *testing.T) {
	f := newFixture(t, true)
	res := f.runner.Run(context.Background(), Job{Worker: 1, Source: filepath.Join(f.dir, "nope.mp4"), Profile: ffmpeg.SoftwareProfile})
	if res.Outcome != Failed || !errors.Is(res.Err, ErrSetup) {
		t.Fatalf("Run = %+v", res)
	}
}

func TestTrackCapsProgress(t *testing.T) {
	f := newFixture(t, true)
	f.agg.Begin(1, "a.mp4")

	f.runner.track(1, 10, "out_time=00:00:05.000000")
	if w, _ := f.agg.Get(1); w.Percent != 50 {
		t.Errorf("percent = %v, want 50", w.Percent)
	}
	f.runner.track(1, 10, "fps=31.5")
	f.runner.track(1, 10, "speed=1.26x")
	f.runner.track(1, 10, "garbage line")
	f.runner.track(1, 10, "out_time=00:00:30.000000")

	w, _ := f.agg.Get(1)
	if w.Percent != progress.MaxRunning || w.FPS != "31.5" || w.Speed != "1.26x" {
		t.Errorf("got %+v", w)
	}
}

func TestProbeFailureDefaultsDuration(t *testing.T) {
	f := newFixture(t, true)
	f.enc.probeErr = errors.New("no ffprobe")
	if d := f.runner.probeDuration(context.Background(), f.src); d != DefaultDuration {
		t.Errorf("duration = %v, want %v", d, DefaultDuration)
	}
	f.enc.probeErr = nil
	f.enc.input = ffmpeg.Media{Duration: 0, Frames: -1}
	if d := f.runner.probeDuration(context.Background(), f.src); d != DefaultDuration {
		t.Errorf("zero duration: got %v", d)
	}
}

func TestExistingBackupSkipsEncode(t *testing.T) {
	f := newFixture(t, true)
	backup := BackupPath(f.src)
	if err := os.WriteFile(backup, []byte("older run"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := f.runner.Run(context.Background(), Job{Worker: 1, Source: f.src, Profile: ffmpeg.SoftwareProfile})
	if res.Outcome != Failed || !errors.Is(res.Err, ErrSwap) {
		t.Fatalf("Run = %+v, want ErrSwap failure", res)
	}
	if got := f.enc.attempted(); len(got) != 0 {
		t.Errorf("encoder ran %v with a backup in place", got)
	}
	if data, _ := os.ReadFile(backup); string(data) != "older run" {
		t.Error("existing backup touched")
	}
	if data, _ := os.ReadFile(f.src); !bytes.Equal(data, f.original) {
		t.Error("source content changed")
	}
}
