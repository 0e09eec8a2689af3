// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

//go:build !windows

package transcode

import "time"

// setBirthTime is a no-op: there is no portable way to set a creation time.
func setBirthTime(path string, t time.Time) error {
	return nil
}
