// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package skills

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// SoftwareEncoder is the CPU encoder every build is expected to carry.
const SoftwareEncoder = "libx264"

// Encoder is one entry of `ffmpeg -encoders`
type Encoder struct {
	Id   string
	Name string
	Type string // V, A or S
}

// HWAccel represents hardware acceleration
type HWAccel struct {
	Id   string
	Name string
}

// Library represents a linked av library
type Library struct {
	Name     string
	Compiled string
	Linked   string
}

type ffmpegInfo struct {
	Version       string
	Compiler      string
	Configuration string
	Libraries     []Library
}

// Skills are the detected capabilities of FFmpeg
type Skills struct {
	FFmpeg   ffmpegInfo
	HWAccels []HWAccel
	Encoders []Encoder
}

// hardware encoders in order of preference, with display labels
var hardwarePriority = []struct {
	id    string
	label string
}{
	{"h264_nvenc", "NVIDIA (NVENC)"},
	{"h264_qsv", "Intel QuickSync"},
	{"h264_videotoolbox", "Apple VideoToolbox"},
	{"h264_vaapi", "VAAPI"},
}

// New returns all skills that FFmpeg provides
func New(binary string) (Skills, error) {
	c := Skills{}

	ff, err := getVersion(binary)
	if ff.Version == "" || err != nil {
		if err != nil {
			return Skills{}, fmt.Errorf("can't parse ffmpeg version: %w", err)
		}
		return Skills{}, fmt.Errorf("can't parse ffmpeg version")
	}
	c.FFmpeg = ff
	c.HWAccels = getHWAccels(binary)
	c.Encoders = getEncoders(binary)

	return c, nil
}

// HasEncoder reports whether the build carries the encoder id.
func (s Skills) HasEncoder(id string) bool {
	for _, e := range s.Encoders {
		if e.Id == id {
			return true
		}
	}
	return false
}

// BestVideoEncoder picks the encoder for a batch. A forced encoder wins when
// the build has it; otherwise the first available hardware encoder, and
// libx264 when none is present.
func (s Skills) BestVideoEncoder(force string) (id, label string) {
	if force != "" && force != "auto" && s.HasEncoder(force) {
		return force, strings.ToUpper(force) + " [FORCED]"
	}
	for _, hw := range hardwarePriority {
		if s.HasEncoder(hw.id) {
			return hw.id, hw.label
		}
	}
	return SoftwareEncoder, "CPU (x264)"
}

func getVersion(binary string) (ffmpegInfo, error) {
	cmd := exec.Command(binary, "-version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return ffmpegInfo{}, err
	}
	return parseVersion(out), nil
}

func parseVersion(data []byte) ffmpegInfo {
	f := ffmpegInfo{}
	reVersion := regexp.MustCompile(`^ffmpeg version n?([0-9]+\.[0-9]+(\.[0-9]+)?)`)
	reCompiler := regexp.MustCompile(`(?m)^\s*built with (.*)$`)
	reConfiguration := regexp.MustCompile(`(?m)^\s*configuration: (.*)$`)
	reLibrary := regexp.MustCompile(`(?m)^\s*(lib(?:[a-z]+))\s+([0-9]+\.\s*[0-9]+\.\s*[0-9]+) /\s+([0-9]+\.\s*[0-9]+\.\s*[0-9]+)`)

	if m := reVersion.FindSubmatch(data); m != nil {
		f.Version = string(m[1])
		if len(m[2]) == 0 {
			f.Version += ".0"
		}
	}
	if m := reCompiler.FindSubmatch(data); m != nil {
		f.Compiler = string(m[1])
	}
	if m := reConfiguration.FindSubmatch(data); m != nil {
		f.Configuration = string(m[1])
	}
	for _, m := range reLibrary.FindAllSubmatch(data, -1) {
		f.Libraries = append(f.Libraries, Library{
			Name:     string(m[1]),
			Compiled: string(m[2]),
			Linked:   string(m[3]),
		})
	}
	return f
}

func getEncoders(binary string) []Encoder {
	cmd := exec.Command(binary, "-hide_banner", "-encoders")
	stdout, _ := cmd.Output()
	return parseEncoders(stdout)
}

func parseEncoders(data []byte) []Encoder {
	var encoders []Encoder
	re := regexp.MustCompile(`^\s([VAS])[F.][S.][X.][B.][D.]\s+([0-9A-Za-z_]+)\s+(.*)$`)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		m := re.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		encoders = append(encoders, Encoder{Id: m[2], Name: strings.TrimSpace(m[3]), Type: m[1]})
	}
	return encoders
}

func getHWAccels(binary string) []HWAccel {
	cmd := exec.Command(binary, "-hide_banner", "-hwaccels")
	stdout, _ := cmd.Output()
	return parseHWAccels(stdout)
}

func parseHWAccels(data []byte) []HWAccel {
	var accels []HWAccel
	re := regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	start := false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "Hardware acceleration methods:" {
			start = true
			continue
		}
		if !start || !re.MatchString(line) {
			continue
		}
		accels = append(accels, HWAccel{Id: line, Name: line})
	}
	return accels
}
