// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/cpu"
	"gopkg.in/yaml.v3"
)

// Sort modes for the work queue
const (
	SortNameAZ   = "name_az"
	SortNameZA   = "name_za"
	SortSizeDesc = "size_desc"
	SortSizeAsc  = "size_asc"
)

// Backup audit modes
const (
	BackupsReport  = "report"
	BackupsRestore = "restore"
	BackupsPurge   = "purge"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	Transcode TranscodeConfig `yaml:"transcode"`
	Batch     BatchConfig     `yaml:"batch"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig 状态服务配置，Bind 为空时不启动
type ServerConfig struct {
	Bind string `yaml:"bind"`
}

// FFmpegConfig FFmpeg 配置
type FFmpegConfig struct {
	Path      string `yaml:"path"`
	ProbePath string `yaml:"probe_path"`
}

// TranscodeConfig 编码参数
type TranscodeConfig struct {
	TargetHeight int    `yaml:"target_height"`
	VideoBitrate string `yaml:"video_bitrate"`
	AudioBitrate string `yaml:"audio_bitrate"`
	TargetFPS    int    `yaml:"target_fps"`
	Codec        string `yaml:"codec"`

	// StaleTimeoutSeconds terminates an encoder that stays silent this long; 0 disables
	StaleTimeoutSeconds int `yaml:"stale_timeout_seconds"`
}

// BatchConfig 批处理参数
type BatchConfig struct {
	Dir              string   `yaml:"dir"`
	MaxWorkers       int      `yaml:"max_workers"`
	Recursive        bool     `yaml:"recursive"`
	Sort             string   `yaml:"sort"`
	VerifyFrames     bool     `yaml:"verify_frames"`
	PreserveMetadata bool     `yaml:"preserve_metadata"`
	AutoCleanup      bool     `yaml:"auto_cleanup"`
	Backups          string   `yaml:"backups"`
	Include          []string `yaml:"include"`
	Exclude          []string `yaml:"exclude"`
}

// LogConfig 日志配置
type LogConfig struct {
	File  string `yaml:"file"`
	Debug bool   `yaml:"debug"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{Bind: ""},
		FFmpeg: FFmpegConfig{Path: "ffmpeg", ProbePath: "ffprobe"},
		Transcode: TranscodeConfig{
			TargetHeight: 480,
			VideoBitrate: "800k",
			AudioBitrate: "128k",
			TargetFPS:    30,
			Codec:        "auto",

			StaleTimeoutSeconds: 300,
		},
		Batch: BatchConfig{
			Dir:              ".",
			MaxWorkers:       DefaultWorkers(),
			Sort:             SortNameAZ,
			VerifyFrames:     true,
			PreserveMetadata: true,
			AutoCleanup:      true,
			Backups:          BackupsReport,
		},
	}
}

// DefaultWorkers returns half the logical CPU count, at least 1.
func DefaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 2 {
		return 1
	}
	return n / 2
}

// Load 从 YAML 文件加载配置
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// 填充空值
	if cfg.FFmpeg.Path == "" {
		cfg.FFmpeg.Path = "ffmpeg"
	}
	if cfg.FFmpeg.ProbePath == "" {
		cfg.FFmpeg.ProbePath = "ffprobe"
	}
	if cfg.Transcode.Codec == "" {
		cfg.Transcode.Codec = "auto"
	}
	if cfg.Batch.Dir == "" {
		cfg.Batch.Dir = "."
	}
	if cfg.Batch.Sort == "" {
		cfg.Batch.Sort = SortNameAZ
	}
	if cfg.Batch.Backups == "" {
		cfg.Batch.Backups = BackupsReport
	}

	return cfg, nil
}

// Save 将配置写回 YAML 文件
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks ranges and enum fields.
func (c *Config) Validate() error {
	var errs []error
	if c.Batch.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("max_workers must be at least 1, got %d", c.Batch.MaxWorkers))
	}
	if c.Transcode.TargetHeight <= 0 {
		errs = append(errs, fmt.Errorf("target_height must be positive, got %d", c.Transcode.TargetHeight))
	}
	if c.Transcode.TargetFPS <= 0 {
		errs = append(errs, fmt.Errorf("target_fps must be positive, got %d", c.Transcode.TargetFPS))
	}
	if c.Transcode.StaleTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("stale_timeout_seconds must not be negative, got %d", c.Transcode.StaleTimeoutSeconds))
	}
	if c.Transcode.VideoBitrate == "" || c.Transcode.AudioBitrate == "" {
		errs = append(errs, errors.New("video_bitrate and audio_bitrate are required"))
	}
	switch c.Batch.Sort {
	case SortNameAZ, SortNameZA, SortSizeDesc, SortSizeAsc:
	default:
		errs = append(errs, fmt.Errorf("unknown sort mode %q", c.Batch.Sort))
	}
	switch c.Batch.Backups {
	case BackupsReport, BackupsRestore, BackupsPurge:
	default:
		errs = append(errs, fmt.Errorf("unknown backups mode %q", c.Batch.Backups))
	}
	return errors.Join(errs...)
}
