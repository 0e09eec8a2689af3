// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package transcode

import (
	"os"
	"time"

	"github.com/djherbis/times"
)

// Timestamps of a source file, captured before it is touched.
type Timestamps struct {
	Access   time.Time
	Modify   time.Time
	Birth    time.Time
	HasBirth bool
}

// CaptureTimes reads the access, modification and, where the platform
// records one, creation time of path.
func CaptureTimes(path string) (Timestamps, error) {
	ts, err := times.Stat(path)
	if err != nil {
		return Timestamps{}, err
	}
	t := Timestamps{
		Access: ts.AccessTime(),
		Modify: ts.ModTime(),
	}
	if ts.HasBirthTime() {
		t.Birth = ts.BirthTime()
		t.HasBirth = true
	}
	return t, nil
}

// Restore applies the timestamps to path. The creation time is only set on
// platforms that allow it.
func (t Timestamps) Restore(path string) error {
	if err := os.Chtimes(path, t.Access, t.Modify); err != nil {
		return err
	}
	if t.HasBirth {
		return setBirthTime(path, t.Birth)
	}
	return nil
}
