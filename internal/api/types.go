// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package api

import (
	"github.com/ZSC714725/mnemosyne/internal/progress"
	"github.com/ZSC714725/mnemosyne/internal/task"
)

// ProgressResponse is the live view of a run
type ProgressResponse struct {
	Workers []progress.WorkerProgress `json:"workers"`
	Total   int                       `json:"total"`
	Done    int                       `json:"done"`
	Failed  int                       `json:"failed"`
	Active  int                       `json:"active"`
}

// ProcessState of one running encoder
type ProcessState struct {
	Pid     int     `json:"pid"`
	State   string  `json:"exec"`
	Runtime int64   `json:"runtime_seconds"`
	Memory  uint64  `json:"memory_bytes"`
	CPU     float64 `json:"cpu_usage"`
}

// JobsResponse lists job records
type JobsResponse struct {
	Jobs []task.Job `json:"jobs"`
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
