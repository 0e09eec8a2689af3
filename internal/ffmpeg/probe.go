// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoDuration is returned when the probe output has no usable duration.
var ErrNoDuration = errors.New("probe: no duration")

// Media is what the probe reports about one file.
type Media struct {
	Duration float64 // seconds
	Frames   int64   // -1 when unknown
}

// ProbeArgs asks for the container duration and the first video stream's
// frame count as key=value lines.
func ProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "format=duration:stream=nb_frames",
		"-of", "default=noprint_wrappers=1",
		path,
	}
}

// ParseProbeOutput reads "duration=" and "nb_frames=" lines in any order.
// A missing or N/A frame count yields -1. A missing duration is an error.
func ParseProbeOutput(out string) (Media, error) {
	m := Media{Duration: -1, Frames: -1}
	found := false

	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "duration":
			d, err := strconv.ParseFloat(value, 64)
			if err != nil {
				continue
			}
			m.Duration = d
			found = true
		case "nb_frames":
			n, err := strconv.ParseInt(value, 10, 64)
			if err == nil && n >= 0 {
				m.Frames = n
			}
		}
	}
	if !found {
		return m, fmt.Errorf("%w: %q", ErrNoDuration, strings.TrimSpace(out))
	}
	return m, nil
}

func (f *ffmpeg) Probe(ctx context.Context, path string) (Media, error) {
	ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.probeBinary, ProbeArgs(path)...)
	out, err := cmd.Output()
	if err != nil {
		return Media{Duration: -1, Frames: -1}, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	return ParseProbeOutput(string(out))
}
