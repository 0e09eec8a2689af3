// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/ZSC714725/mnemosyne/internal/ffmpeg/skills"
	"github.com/ZSC714725/mnemosyne/internal/logger"
	"github.com/ZSC714725/mnemosyne/internal/process"
)

// FFmpeg manages the encoder and probe binaries and their skills
type FFmpeg interface {
	New(config ProcessConfig) (process.Process, error)
	Probe(ctx context.Context, path string) (Media, error)
	Skills() skills.Skills
	ReloadSkills() error
}

// ProcessConfig for creating an encoder process
type ProcessConfig struct {
	Args          []string
	StaleTimeout  time.Duration
	OnLine        func(line string)
	OnStateChange func(from, to string)
	Logger        logger.Logger
}

// Config for FFmpeg
type Config struct {
	Binary       string
	ProbeBinary  string
	MaxLogLines  int
	ProbeTimeout time.Duration
	// SampleUsage attaches a CPU/memory sampler to every encoder process
	SampleUsage bool
}

type ffmpeg struct {
	binary       string
	probeBinary  string
	probeTimeout time.Duration
	logLines     int
	sampleUsage  bool
	skills       skills.Skills
	skillsLock   sync.RWMutex
}

// New resolves both binaries on PATH and detects the encoder skills.
func New(config Config) (FFmpeg, error) {
	binary, err := exec.LookPath(config.Binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg binary: %w", err)
	}
	probeBinary, err := exec.LookPath(config.ProbeBinary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffprobe binary: %w", err)
	}

	f := &ffmpeg{
		binary:       binary,
		probeBinary:  probeBinary,
		probeTimeout: config.ProbeTimeout,
		logLines:     config.MaxLogLines,
		sampleUsage:  config.SampleUsage,
	}

	if f.logLines <= 0 {
		f.logLines = 100
	}
	if f.probeTimeout <= 0 {
		f.probeTimeout = 15 * time.Second
	}

	s, err := skills.New(f.binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg: %w", err)
	}
	f.skills = s

	return f, nil
}

func (f *ffmpeg) New(config ProcessConfig) (process.Process, error) {
	var sampler process.Sampler
	if f.sampleUsage {
		sampler = process.NewSysSampler()
	}

	return process.New(process.Config{
		Binary:        f.binary,
		Args:          config.Args,
		StaleTimeout:  config.StaleTimeout,
		LogLines:      f.logLines,
		OnLine:        config.OnLine,
		OnStateChange: config.OnStateChange,
		Sampler:       sampler,
		Logger:        config.Logger,
	})
}

func (f *ffmpeg) Skills() skills.Skills {
	f.skillsLock.RLock()
	defer f.skillsLock.RUnlock()
	return f.skills
}

func (f *ffmpeg) ReloadSkills() error {
	s, err := skills.New(f.binary)
	if err != nil {
		return fmt.Errorf("reload skills: %w", err)
	}
	f.skillsLock.Lock()
	f.skills = s
	f.skillsLock.Unlock()
	return nil
}
