// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if cfg.Batch.MaxWorkers < 1 {
		t.Errorf("MaxWorkers = %d, want >= 1", cfg.Batch.MaxWorkers)
	}
	if cfg.Transcode.TargetHeight != 480 || cfg.Transcode.TargetFPS != 30 {
		t.Errorf("unexpected transcode defaults: %+v", cfg.Transcode)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FFmpeg.Path != "ffmpeg" {
		t.Errorf("FFmpeg.Path = %q", cfg.FFmpeg.Path)
	}
}

func TestLoadOverridesAndFillsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mnemosyne.yaml")
	data := []byte(`
ffmpeg:
  path: ""
transcode:
  target_height: 720
  video_bitrate: 1500k
batch:
  max_workers: 3
  sort: size_desc
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FFmpeg.Path != "ffmpeg" {
		t.Errorf("empty path not filled: %q", cfg.FFmpeg.Path)
	}
	if cfg.Transcode.TargetHeight != 720 || cfg.Transcode.VideoBitrate != "1500k" {
		t.Errorf("transcode = %+v", cfg.Transcode)
	}
	if cfg.Transcode.AudioBitrate != "128k" {
		t.Errorf("AudioBitrate = %q, want default kept", cfg.Transcode.AudioBitrate)
	}
	if cfg.Batch.MaxWorkers != 3 || cfg.Batch.Sort != SortSizeDesc {
		t.Errorf("batch = %+v", cfg.Batch)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Batch.Recursive = true
	cfg.Server.Bind = ":9090"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Batch.Recursive || got.Server.Bind != ":9090" {
		t.Errorf("got %+v", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero workers", func(c *Config) { c.Batch.MaxWorkers = 0 }, true},
		{"bad sort", func(c *Config) { c.Batch.Sort = "random" }, true},
		{"bad backups", func(c *Config) { c.Batch.Backups = "keep" }, true},
		{"zero height", func(c *Config) { c.Transcode.TargetHeight = 0 }, true},
		{"empty bitrate", func(c *Config) { c.Transcode.VideoBitrate = "" }, true},
		{"negative stale timeout", func(c *Config) { c.Transcode.StaleTimeoutSeconds = -1 }, true},
		{"stale timeout disabled", func(c *Config) { c.Transcode.StaleTimeoutSeconds = 0 }, false},
		{"purge backups", func(c *Config) { c.Batch.Backups = BackupsPurge }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
