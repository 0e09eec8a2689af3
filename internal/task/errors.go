// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package task

import "errors"

var (
	ErrNotFound          = errors.New("job not found")
	ErrJobExists         = errors.New("job already active for source")
	ErrInvalidSource     = errors.New("invalid source path")
	ErrInvalidTransition = errors.New("invalid state transition")
)
