// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package task

// State of a job
type State string

const (
	Queued        State = "queued"
	Encoding      State = "encoding"
	FallbackRetry State = "fallback_retry"
	Verifying     State = "verifying"
	Swapping      State = "swapping"
	Restoring     State = "restoring"
	Done          State = "done"
	Failed        State = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == Done || s == Failed
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case Queued, Encoding, FallbackRetry, Verifying, Swapping, Restoring, Done, Failed:
		return true
	}
	return false
}

var transitions = map[State][]State{
	Queued:        {Encoding},
	Encoding:      {Verifying, Swapping, FallbackRetry},
	FallbackRetry: {Encoding},
	Verifying:     {Swapping},
	Swapping:      {Restoring, Done},
	Restoring:     {Done},
}

// CanTransition reports whether from -> to is allowed. Every non-terminal
// state may fail.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == Failed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is the record of one file's transcode
type Job struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Worker     int    `json:"worker"`
	Codec      string `json:"codec"`
	State      State  `json:"state"`
	Attempts   int    `json:"attempts"`
	InputSize  int64  `json:"input_size"`
	OutputSize int64  `json:"output_size"`
	Error      string `json:"error,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}
