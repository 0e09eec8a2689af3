// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ZSC714725/mnemosyne/internal/progress"
)

const (
	barWidth  = 30
	nameWidth = 28
)

// Frame renders one progress frame: two lines per worker followed by the
// batch footer.
func Frame(workers []progress.WorkerProgress, total int, now time.Time) string {
	var b strings.Builder
	done, active := 0, 0

	for _, w := range workers {
		name := Truncate(w.Filename, nameWidth)
		if w.Done() {
			done++
			fmt.Fprintf(&b, " [%d] %-28s %s DONE\n", w.WorkerID, name, bar(100))
			fmt.Fprintf(&b, "     `- %s\n", w.SizeSummary)
			continue
		}
		if w.Active() {
			active++
		}

		fps, speed := w.FPS, w.Speed
		if fps == "" || fps == "-" {
			fps = "..."
		}
		if speed == "" || strings.EqualFold(speed, "0x") {
			speed = "..."
		}
		detail := fmt.Sprintf("%s | %s fps", speed, fps)
		if eta, ok := ETA(now.Sub(w.StartedAt), w.Percent); ok {
			detail += " | ETA: " + FormatDuration(eta)
		}
		if w.Status != "" {
			detail += " | " + w.Status
		}
		fmt.Fprintf(&b, " [%d] %-28s %s %5.1f%%\n", w.WorkerID, name, bar(w.Percent), w.Percent)
		fmt.Fprintf(&b, "     `- %s\n", detail)
	}

	pct := 0.0
	if total > 0 {
		pct = float64(done) / float64(total) * 100
	}
	b.WriteString(" " + strings.Repeat("=", 70) + "\n")
	fmt.Fprintf(&b, " Total: %d | Done: %d | Active: %d | %.1f%%\n", total, done, active, pct)
	return b.String()
}

// Render writes a frame to w. On a terminal the previous frame is
// overwritten in place.
func Render(w io.Writer, workers []progress.WorkerProgress, total int, tty bool) error {
	frame := Frame(workers, total, time.Now())
	if tty {
		frame = "\033[H\033[J" + frame
	}
	_, err := io.WriteString(w, frame)
	return err
}

func bar(percent float64) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(barWidth * percent / 100)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled) + "]"
}
