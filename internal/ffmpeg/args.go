// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package ffmpeg

import (
	"strconv"
	"strings"

	"github.com/ZSC714725/mnemosyne/internal/ffmpeg/skills"
)

// EncoderTag is embedded in every output file's metadata.
const EncoderTag = "Mnemosyne v1.0"

// Family groups video encoders that share a rate-control argument set.
type Family int

const (
	FamilySoftware Family = iota // libx264
	FamilyNVENC                  // NVIDIA
	FamilyHardware               // QuickSync, VAAPI, VideoToolbox, AMF, ...
)

// Profile selects the video encoder for one attempt.
type Profile struct {
	Codec string
	Label string
}

// SoftwareProfile is the fallback used when a hardware encode fails.
var SoftwareProfile = Profile{Codec: skills.SoftwareEncoder, Label: "CPU (x264)"}

// Family classifies the profile's codec.
func (p Profile) Family() Family {
	switch {
	case strings.Contains(p.Codec, "nvenc"):
		return FamilyNVENC
	case strings.Contains(p.Codec, "libx264"):
		return FamilySoftware
	default:
		return FamilyHardware
	}
}

// IsSoftware reports whether the profile is already the fallback.
func (p Profile) IsSoftware() bool {
	return p.Family() == FamilySoftware
}

// Settings are the per-batch encode parameters.
type Settings struct {
	TargetHeight int
	TargetFPS    int
	VideoBitrate string
	AudioBitrate string
}

// EncodeArgs builds the encoder argument vector (without the binary).
// Progress goes to stdout as key=value lines; periodic stats are suppressed.
func EncodeArgs(p Profile, s Settings, input, output string) []string {
	args := make([]string, 0, 32)
	args = append(args, "-nostdin", "-y", "-i", input, "-c:v", p.Codec)

	switch p.Family() {
	case FamilyNVENC:
		args = append(args, "-rc", "vbr", "-cq", "24", "-preset", "p4")
	case FamilySoftware:
		args = append(args, "-b:v", s.VideoBitrate, "-preset", "medium")
	default:
		// vendor presets differ and can crash other hardware encoders
		args = append(args, "-b:v", s.VideoBitrate)
	}

	args = append(args,
		"-r", strconv.Itoa(s.TargetFPS),
		"-vf", "scale=-2:"+strconv.Itoa(s.TargetHeight),
		"-c:a", "aac", "-b:a", s.AudioBitrate,
		"-metadata", "encoder="+EncoderTag,
		"-progress", "-", "-nostats",
		output,
	)
	return args
}
