// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具
//
// Package process wraps exec.Cmd for controlling an encoder process.

package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"
)

var (
	ErrNotStarted     = errors.New("process not started")
	ErrAlreadyStarted = errors.New("process already started")
)

// Process represents one external encoder run. Start spawns it, Wait
// consumes its standard output until EOF and reaps it.
type Process interface {
	Start() error
	Wait() error
	Terminate(grace time.Duration) error
	Status() Status
	IsRunning() bool
	Log() []Line
}

// Config for a process
type Config struct {
	Binary        string
	Args          []string
	Env           []string // nil inherits the parent environment
	StaleTimeout  time.Duration
	LogLines      int
	OnLine        func(line string)
	OnStateChange func(from, to string)
	Sampler       Sampler
	Logger        Logger
}

// Status of a process
type Status struct {
	State    string
	Pid      int
	Duration time.Duration
	Time     time.Time
	CPU      struct {
		Current float64
	}
	Memory struct {
		Current uint64
	}
}

// ExitError describes an abnormal exit: non-zero status or death by signal.
type ExitError struct {
	Code     int
	Signaled bool
	Err      error
}

func (e *ExitError) Error() string {
	if e.Signaled {
		return fmt.Sprintf("process killed by signal: %v", e.Err)
	}
	return fmt.Sprintf("process exited with status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Logger interface
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

type stateType string

const (
	stateIdle      stateType = "idle"
	stateStarting  stateType = "starting"
	stateRunning   stateType = "running"
	stateFinishing stateType = "finishing"
	stateFinished  stateType = "finished"
	stateFailed    stateType = "failed"
	stateKilled    stateType = "killed"
)

func (s stateType) String() string { return string(s) }

func (s stateType) IsRunning() bool {
	return s == stateStarting || s == stateRunning || s == stateFinishing
}

type process struct {
	binary string
	args   []string
	env    []string
	cmd    *exec.Cmd
	pid    int
	stdout io.ReadCloser
	stderr *tail
	onLine func(string)

	state struct {
		state stateType
		time  time.Time
		lock  sync.Mutex
	}
	stale struct {
		last    time.Time
		timeout time.Duration
		cancel  context.CancelFunc
		lock    sync.Mutex
	}
	wait struct {
		once sync.Once
		done chan struct{}
		err  error
	}
	logger        Logger
	sampler       Sampler
	onStateChange func(from, to string)
}

// New creates a new process
func New(config Config) (Process, error) {
	if len(config.Binary) == 0 {
		return nil, fmt.Errorf("no valid binary given")
	}

	p := &process{
		binary:        config.Binary,
		args:          config.Args,
		env:           config.Env,
		stderr:        newTail(config.LogLines),
		onLine:        config.OnLine,
		logger:        config.Logger,
		sampler:       config.Sampler,
		onStateChange: config.OnStateChange,
	}
	if p.onLine == nil {
		p.onLine = func(string) {}
	}
	if p.logger == nil {
		p.logger = &nopLogger{}
	}
	if p.sampler == nil {
		p.sampler = NewNullSampler()
	}
	p.stale.timeout = config.StaleTimeout
	p.wait.done = make(chan struct{})
	p.state.state = stateIdle
	p.state.time = time.Now()

	return p, nil
}

func (p *process) setState(state stateType) error {
	p.state.lock.Lock()
	defer p.state.lock.Unlock()

	prev := p.state.state
	ok := false

	switch prev {
	case stateIdle:
		ok = state == stateStarting
	case stateStarting:
		ok = state == stateRunning || state == stateFailed
	case stateRunning:
		ok = state == stateFinishing || state == stateFinished || state == stateFailed || state == stateKilled
	case stateFinishing:
		ok = state == stateFinished || state == stateFailed || state == stateKilled
	}
	if !ok {
		return fmt.Errorf("can't change from %s to %s", prev, state)
	}

	p.state.state = state
	p.state.time = time.Now()
	if p.onStateChange != nil {
		go p.onStateChange(prev.String(), state.String())
	}
	return nil
}

func (p *process) getState() stateType {
	p.state.lock.Lock()
	defer p.state.lock.Unlock()
	return p.state.state
}

func (p *process) IsRunning() bool {
	return p.getState().IsRunning()
}

func (p *process) Status() Status {
	cpu, memory := p.sampler.Current()

	p.state.lock.Lock()
	s := Status{
		State:    p.state.state.String(),
		Pid:      p.pid,
		Duration: time.Since(p.state.time),
		Time:     p.state.time,
	}
	p.state.lock.Unlock()

	s.CPU.Current = cpu
	s.Memory.Current = memory
	return s
}

func (p *process) Log() []Line {
	return p.stderr.Lines()
}

func (p *process) Start() error {
	if err := p.setState(stateStarting); err != nil {
		return ErrAlreadyStarted
	}

	cmd := exec.Command(p.binary, p.args...)
	cmd.Env = p.env
	cmd.Stderr = p.stderr
	detach(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.setState(stateFailed)
		p.finish(err)
		return err
	}

	if err := cmd.Start(); err != nil {
		p.setState(stateFailed)
		p.finish(err)
		return fmt.Errorf("start %s: %w", p.binary, err)
	}

	p.state.lock.Lock()
	p.cmd = cmd
	p.pid = cmd.Process.Pid
	p.stdout = stdout
	p.state.lock.Unlock()

	if err := p.sampler.Start(p.pid); err != nil {
		p.logger.Debug("sampler for pid %d: %v", p.pid, err)
	}

	p.setState(stateRunning)

	if p.stale.timeout != 0 {
		ctx, cancel := context.WithCancel(context.Background())
		p.stale.lock.Lock()
		p.stale.last = time.Now()
		p.stale.cancel = cancel
		p.stale.lock.Unlock()
		go p.staler(ctx)
	}

	return nil
}

// Wait reads standard output line by line until EOF, then reaps the
// process. Calling it more than once returns the first result.
func (p *process) Wait() error {
	p.state.lock.Lock()
	started := p.cmd != nil
	p.state.lock.Unlock()
	if !started {
		select {
		case <-p.wait.done:
			return p.wait.err
		default:
			return ErrNotStarted
		}
	}

	p.wait.once.Do(func() {
		p.reader()
		p.finish(p.waiter())
	})
	return p.wait.err
}

func (p *process) finish(err error) {
	p.wait.err = err
	select {
	case <-p.wait.done:
	default:
		close(p.wait.done)
	}
}

func (p *process) reader() {
	scanner := bufio.NewScanner(p.stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLine)

	for scanner.Scan() {
		p.stale.lock.Lock()
		p.stale.last = time.Now()
		p.stale.lock.Unlock()

		p.onLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		p.logger.Debug("read %s output: %v", p.binary, err)
		// drain so the child never blocks on a full pipe
		io.Copy(io.Discard, p.stdout)
	}
}

func (p *process) waiter() error {
	err := p.cmd.Wait()

	p.sampler.Stop()

	p.stale.lock.Lock()
	if p.stale.cancel != nil {
		p.stale.cancel()
		p.stale.cancel = nil
	}
	p.stale.lock.Unlock()

	if err == nil {
		p.setState(stateFinished)
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			p.setState(stateKilled)
			return &ExitError{Code: -1, Signaled: true, Err: err}
		}
		p.setState(stateFailed)
		return &ExitError{Code: exitErr.ExitCode(), Err: err}
	}

	p.setState(stateKilled)
	return &ExitError{Code: -1, Signaled: true, Err: err}
}

// Terminate asks the process to stop, waits up to grace for it to exit and
// kills it otherwise. It is a no-op on a process that is not running or is
// already being terminated.
func (p *process) Terminate(grace time.Duration) error {
	if err := p.setState(stateFinishing); err != nil {
		return nil
	}

	p.state.lock.Lock()
	proc := p.cmd.Process
	p.state.lock.Unlock()

	if err := interrupt(proc); err != nil {
		return ignoreDone(kill(proc))
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.wait.done:
		return nil
	case <-timer.C:
		p.logger.Info("pid %d did not exit within %s, killing", p.pid, grace)
		return ignoreDone(kill(proc))
	}
}

func (p *process) staler(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			p.stale.lock.Lock()
			last := p.stale.last
			timeout := p.stale.timeout
			p.stale.lock.Unlock()

			if t.Sub(last) > timeout {
				p.logger.Error("pid %d produced no output for %s, stopping", p.pid, timeout)
				go p.Terminate(5 * time.Second)
				return
			}
		}
	}
}

func ignoreDone(err error) error {
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func scanLine(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) {
		r, w := utf8.DecodeRune(data[start:])
		if r != '\n' && r != '\r' {
			break
		}
		start += w
	}

	for i := start; i < len(data); {
		r, w := utf8.DecodeRune(data[i:])
		if r == '\n' || r == '\r' {
			return i + w, data[start:i], nil
		}
		i += w
	}

	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

type nopLogger struct{}

func (l *nopLogger) Info(format string, args ...interface{})  {}
func (l *nopLogger) Error(format string, args ...interface{}) {}
func (l *nopLogger) Debug(format string, args ...interface{}) {}
