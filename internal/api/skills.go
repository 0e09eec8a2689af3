// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package api

import (
	"github.com/ZSC714725/mnemosyne/internal/ffmpeg/skills"
)

// SkillsResponse for API
type SkillsResponse struct {
	FFmpeg struct {
		Version       string        `json:"version"`
		Compiler      string        `json:"compiler"`
		Configuration string        `json:"configuration"`
		Libraries     []SkillsEntry `json:"libraries"`
	} `json:"ffmpeg"`

	HWAccels []SkillsEntry  `json:"hwaccels"`
	Encoders SkillsEncoders `json:"encoders"`

	// Selected is the encoder a batch would use with the configured codec
	Selected SkillsEntry `json:"selected"`
}

// SkillsEntry is an id with a display name. Libraries use Name and Detail
// for compiled/linked versions.
type SkillsEntry struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
}

// SkillsEncoders groups encoders by media type
type SkillsEncoders struct {
	Video    []SkillsEntry `json:"video"`
	Audio    []SkillsEntry `json:"audio"`
	Subtitle []SkillsEntry `json:"subtitle"`
}

func skillsToAPI(s skills.Skills, codec string) SkillsResponse {
	resp := SkillsResponse{}

	resp.FFmpeg.Version = s.FFmpeg.Version
	resp.FFmpeg.Compiler = s.FFmpeg.Compiler
	resp.FFmpeg.Configuration = s.FFmpeg.Configuration
	resp.FFmpeg.Libraries = make([]SkillsEntry, len(s.FFmpeg.Libraries))
	for i, lib := range s.FFmpeg.Libraries {
		resp.FFmpeg.Libraries[i] = SkillsEntry{ID: lib.Name, Name: lib.Compiled, Detail: lib.Linked}
	}

	resp.HWAccels = make([]SkillsEntry, len(s.HWAccels))
	for i, h := range s.HWAccels {
		resp.HWAccels[i] = SkillsEntry{ID: h.Id, Name: h.Name}
	}

	resp.Encoders.Video = []SkillsEntry{}
	resp.Encoders.Audio = []SkillsEntry{}
	resp.Encoders.Subtitle = []SkillsEntry{}
	for _, e := range s.Encoders {
		entry := SkillsEntry{ID: e.Id, Name: e.Name}
		switch e.Type {
		case "V":
			resp.Encoders.Video = append(resp.Encoders.Video, entry)
		case "A":
			resp.Encoders.Audio = append(resp.Encoders.Audio, entry)
		case "S":
			resp.Encoders.Subtitle = append(resp.Encoders.Subtitle, entry)
		}
	}

	id, label := s.BestVideoEncoder(codec)
	resp.Selected = SkillsEntry{ID: id, Name: label}

	return resp
}
