// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package display

import (
	"fmt"
	"time"
)

// FormatBytes returns a human-readable size (B, KiB, MiB, GiB, TiB, PiB).
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < 0 {
		return "-" + FormatBytes(-bytes)
	}
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit && exp < 5; n /= unit {
		div *= unit
		exp++
	}
	suffixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), suffixes[exp])
}

// FormatDuration renders d as "Xm Ys", with hours when needed.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}

// ETA estimates the remaining time of a job that has run for elapsed and
// reached percent. It reports false until percent is above 1.
func ETA(elapsed time.Duration, percent float64) (time.Duration, bool) {
	if percent <= 1 || percent >= 100 {
		return 0, false
	}
	total := elapsed.Seconds() / (percent / 100)
	return time.Duration((total - elapsed.Seconds()) * float64(time.Second)), true
}

// Truncate shortens name to at most n runes, ending in "..." when cut.
func Truncate(name string, n int) string {
	r := []rune(name)
	if len(r) <= n {
		return name
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
