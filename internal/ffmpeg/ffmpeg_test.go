// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package ffmpeg

import (
	"errors"
	"strings"
	"testing"
)

var testSettings = Settings{TargetHeight: 720, TargetFPS: 30, VideoBitrate: "2M", AudioBitrate: "128k"}

func TestEncodeArgs(t *testing.T) {
	tests := []struct {
		codec string
		want  string // rate-control segment
	}{
		{"h264_nvenc", "-c:v h264_nvenc -rc vbr -cq 24 -preset p4 -r 30"},
		{"hevc_nvenc", "-c:v hevc_nvenc -rc vbr -cq 24 -preset p4 -r 30"},
		{"libx264", "-c:v libx264 -b:v 2M -preset medium -r 30"},
		{"h264_qsv", "-c:v h264_qsv -b:v 2M -r 30"},
		{"h264_vaapi", "-c:v h264_vaapi -b:v 2M -r 30"},
	}
	for _, tt := range tests {
		t.Run(tt.codec, func(t *testing.T) {
			args := EncodeArgs(Profile{Codec: tt.codec}, testSettings, "in.mp4", "tmp.mp4")
			line := strings.Join(args, " ")
			if !strings.HasPrefix(line, "-nostdin -y -i in.mp4 ") {
				t.Errorf("prefix: %s", line)
			}
			if !strings.Contains(line, tt.want) {
				t.Errorf("got %s, want segment %q", line, tt.want)
			}
			suffix := "-vf scale=-2:720 -c:a aac -b:a 128k -metadata encoder=Mnemosyne v1.0 -progress - -nostats tmp.mp4"
			if !strings.HasSuffix(line, suffix) {
				t.Errorf("suffix: %s", line)
			}
			if args[len(args)-1] != "tmp.mp4" {
				t.Errorf("output must be last, got %q", args[len(args)-1])
			}
		})
	}
}

func TestProfileFamily(t *testing.T) {
	if !SoftwareProfile.IsSoftware() {
		t.Error("SoftwareProfile is not software")
	}
	if (Profile{Codec: "h264_nvenc"}).Family() != FamilyNVENC {
		t.Error("nvenc family")
	}
	if (Profile{Codec: "h264_videotoolbox"}).IsSoftware() {
		t.Error("videotoolbox reported as software")
	}
}

func TestParseProbeOutput(t *testing.T) {
	tests := []struct {
		name     string
		out      string
		duration float64
		frames   int64
		err      bool
	}{
		{"both", "nb_frames=300\nduration=10.000000\n", 10, 300, false},
		{"reversed", "duration=12.5\nnb_frames=375\n", 12.5, 375, false},
		{"frames n/a", "nb_frames=N/A\nduration=4.2\n", 4.2, -1, false},
		{"frames missing", "duration=4.2\n", 4.2, -1, false},
		{"crlf", "nb_frames=25\r\nduration=1.0\r\n", 1, 25, false},
		{"duration n/a", "nb_frames=25\nduration=N/A\n", -1, 25, true},
		{"empty", "", -1, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseProbeOutput(tt.out)
			if tt.err {
				if !errors.Is(err, ErrNoDuration) {
					t.Fatalf("err = %v, want ErrNoDuration", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.Duration != tt.duration || m.Frames != tt.frames {
				t.Errorf("got %+v, want duration %v frames %d", m, tt.duration, tt.frames)
			}
		})
	}
}

func TestProbeArgs(t *testing.T) {
	args := ProbeArgs("/v/a.mp4")
	if args[len(args)-1] != "/v/a.mp4" {
		t.Errorf("path must be last: %v", args)
	}
	if !strings.Contains(strings.Join(args, " "), "format=duration:stream=nb_frames") {
		t.Errorf("missing entries: %v", args)
	}
}
