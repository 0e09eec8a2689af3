// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

// Package parse turns FFmpeg `-progress` status lines into events. The
// parser holds no state: every line is classified on its own.
package parse

import (
	"regexp"
	"strconv"
	"time"
)

// Kind tags an Event
type Kind int

const (
	Unrecognized Kind = iota
	TimeUpdate
	RateUpdate
)

func (k Kind) String() string {
	switch k {
	case TimeUpdate:
		return "time"
	case RateUpdate:
		return "rate"
	default:
		return "unrecognized"
	}
}

// Event is the result of parsing one status line. Elapsed is set for
// TimeUpdate. FPS and Speed are copied verbatim and either may be empty
// when the line carried only the other one.
type Event struct {
	Kind    Kind
	Elapsed time.Duration
	FPS     string
	Speed   string
}

var (
	reTime  = regexp.MustCompile(`(?:^|\s)(?:out_)?time=\s*([0-9]+):([0-9]{2}):([0-9]{2}(?:\.[0-9]+)?)`)
	reFPS   = regexp.MustCompile(`(?:^|\s)fps=\s*(\S+)`)
	reSpeed = regexp.MustCompile(`(?:^|\s)speed=\s*(\S+)`)
)

// Line classifies a single status line. A classic stats line carrying
// time= as well as fps= and speed= yields a TimeUpdate with the rate
// fields filled in too.
func Line(line string) Event {
	var ev Event
	if m := reFPS.FindStringSubmatch(line); m != nil {
		ev.FPS = m[1]
	}
	if m := reSpeed.FindStringSubmatch(line); m != nil {
		ev.Speed = m[1]
	}
	if ev.FPS != "" || ev.Speed != "" {
		ev.Kind = RateUpdate
	}

	if m := reTime.FindStringSubmatch(line); m != nil {
		h, err1 := strconv.Atoi(m[1])
		mm, err2 := strconv.Atoi(m[2])
		s, err3 := strconv.ParseFloat(m[3], 64)
		if err1 == nil && err2 == nil && err3 == nil {
			secs := float64(h*3600+mm*60) + s
			ev.Kind = TimeUpdate
			ev.Elapsed = time.Duration(secs * float64(time.Second))
		}
	}
	return ev
}
