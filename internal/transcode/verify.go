// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package transcode

import (
	"fmt"
	"math"

	"github.com/ZSC714725/mnemosyne/internal/ffmpeg"
)

const (
	// MinOutputSize is the smallest encode output treated as plausible.
	MinOutputSize = 10240
	// DurationTolerance is the largest accepted duration drift, exclusive.
	DurationTolerance = 2.0
	// FrameTolerance is the largest accepted frame-count drift, exclusive.
	FrameTolerance = 150
)

// Compare accepts out as an encode of in when the durations differ by less
// than DurationTolerance and, if both frame counts are known, the frame
// counts differ by less than FrameTolerance.
func Compare(in, out ffmpeg.Media) error {
	if d := math.Abs(in.Duration - out.Duration); !(d < DurationTolerance) {
		return fmt.Errorf("%w: duration %.2fs vs %.2fs", ErrVerify, in.Duration, out.Duration)
	}
	if in.Frames < 0 || out.Frames < 0 {
		return nil
	}
	diff := in.Frames - out.Frames
	if diff < 0 {
		diff = -diff
	}
	if diff >= FrameTolerance {
		return fmt.Errorf("%w: %d frames vs %d", ErrVerify, in.Frames, out.Frames)
	}
	return nil
}

// SizeSummary describes the size change of a finished job.
func SizeSummary(before, after int64) string {
	saved := 0.0
	if before > 0 {
		saved = (1 - float64(after)/float64(before)) * 100
	}
	return fmt.Sprintf("%.1fMB -> %.1fMB (%.0f%% saved)", mb(before), mb(after), saved)
}

func mb(n int64) float64 {
	return float64(n) / 1024 / 1024
}
