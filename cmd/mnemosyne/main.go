// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZSC714725/mnemosyne/internal/api"
	"github.com/ZSC714725/mnemosyne/internal/batch"
	"github.com/ZSC714725/mnemosyne/internal/config"
	"github.com/ZSC714725/mnemosyne/internal/display"
	"github.com/ZSC714725/mnemosyne/internal/ffmpeg"
	"github.com/ZSC714725/mnemosyne/internal/logger"
	"github.com/ZSC714725/mnemosyne/internal/process"
	"github.com/ZSC714725/mnemosyne/internal/progress"
	"github.com/ZSC714725/mnemosyne/internal/task"
	"github.com/ZSC714725/mnemosyne/internal/transcode"
)

const (
	exitSetup       = 1
	exitInterrupted = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to YAML config file")
	dir := flag.String("dir", "", "Directory to transcode (overrides config)")
	workers := flag.Int("workers", 0, "Concurrent encoders (overrides config)")
	height := flag.Int("height", 0, "Target height in pixels (overrides config)")
	codec := flag.String("codec", "", "Video encoder or \"auto\" (overrides config)")
	recursive := flag.Bool("recursive", false, "Descend into subdirectories")
	sortMode := flag.String("sort", "", "Queue order: name_az, name_za, size_desc, size_asc")
	bind := flag.String("bind", "", "Status API bind address (overrides config)")
	ffmpegBin := flag.String("ffmpeg", "", "FFmpeg binary path (overrides config)")
	ffprobeBin := flag.String("ffprobe", "", "FFprobe binary path (overrides config)")
	logFile := flag.String("log", "", "Log file (overrides config)")
	debug := flag.Bool("debug", false, "Log encoder debug output")
	backups := flag.String("backups", "", "Leftover .bak handling: report, restore, purge")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Printf("Load config: %v", err)
			return exitSetup
		}
	}

	if *dir != "" {
		cfg.Batch.Dir = *dir
	}
	if *workers > 0 {
		cfg.Batch.MaxWorkers = *workers
	}
	if *height > 0 {
		cfg.Transcode.TargetHeight = *height
	}
	if *codec != "" {
		cfg.Transcode.Codec = *codec
	}
	if *recursive {
		cfg.Batch.Recursive = true
	}
	if *sortMode != "" {
		cfg.Batch.Sort = *sortMode
	}
	if *bind != "" {
		cfg.Server.Bind = *bind
	}
	if *ffmpegBin != "" {
		cfg.FFmpeg.Path = *ffmpegBin
	}
	if *ffprobeBin != "" {
		cfg.FFmpeg.ProbePath = *ffprobeBin
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *debug {
		cfg.Log.Debug = true
	}
	if *backups != "" {
		cfg.Batch.Backups = *backups
	}

	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid config: %v", err)
		return exitSetup
	}

	// the progress frame owns stdout, so logs go to the file or stderr
	var logOut io.Writer = os.Stderr
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("Open log file: %v", err)
			return exitSetup
		}
		defer f.Close()
		logOut = f
	}
	logger := logger.NewWithOutput("mnemosyne: ", logOut, cfg.Log.Debug)

	ff, err := ffmpeg.New(ffmpeg.Config{
		Binary:      cfg.FFmpeg.Path,
		ProbeBinary: cfg.FFmpeg.ProbePath,
		MaxLogLines: 100,
		SampleUsage: true,
	})
	if err != nil {
		log.Printf("FFmpeg init: %v", err)
		return exitSetup
	}

	codecID, label := ff.Skills().BestVideoEncoder(cfg.Transcode.Codec)
	profile := ffmpeg.Profile{Codec: codecID, Label: label}
	logger.Info("Encoder: %s (%s)", profile.Label, profile.Codec)

	report, err := batch.AuditBackups(cfg.Batch.Dir, cfg.Batch.Recursive, cfg.Batch.Backups, logger)
	if err != nil {
		log.Printf("Backup audit: %v", err)
		return exitSetup
	}
	if n := len(report.Found); n > 0 {
		fmt.Printf("Found %d leftover backups (restored %d, purged %d, kept %d)\n", n, report.Restored, report.Purged, report.Kept)
	}
	if cfg.Batch.AutoCleanup {
		if _, err := batch.CleanupTemp(cfg.Batch.Dir, cfg.Batch.Recursive, logger); err != nil {
			logger.Warn("Temp sweep: %v", err)
		}
	}

	filter, err := batch.NewFilter(cfg.Batch.Include, cfg.Batch.Exclude)
	if err != nil {
		log.Printf("Invalid include/exclude: %v", err)
		return exitSetup
	}
	files, err := batch.Discover(cfg.Batch.Dir, cfg.Batch.Recursive, filter)
	if err != nil {
		log.Printf("Discover: %v", err)
		return exitSetup
	}
	batch.SortFiles(files, cfg.Batch.Sort)
	if len(files) == 0 {
		fmt.Println("No video files found.")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := process.NewRegistry(5*time.Second, logger)
	agg := progress.New()
	jobs := task.NewStore(logger)

	runner := transcode.NewRunner(transcode.Config{
		FFmpeg:   ff,
		Registry: registry,
		Progress: agg,
		Jobs:     jobs,
		Settings: ffmpeg.Settings{
			TargetHeight: cfg.Transcode.TargetHeight,
			TargetFPS:    cfg.Transcode.TargetFPS,
			VideoBitrate: cfg.Transcode.VideoBitrate,
			AudioBitrate: cfg.Transcode.AudioBitrate,
		},
		Verify:           cfg.Batch.VerifyFrames,
		PreserveMetadata: cfg.Batch.PreserveMetadata,
		StaleTimeout:     time.Duration(cfg.Transcode.StaleTimeoutSeconds) * time.Second,
		Logger:           logger,
	})

	if cfg.Server.Bind != "" {
		handler := api.NewHandler(api.HandlerConfig{
			Jobs:     jobs,
			Progress: agg,
			Registry: registry,
			Skills:   ff,
			Codec:    cfg.Transcode.Codec,
			Total:    len(files),
			Cancel:   cancel,
		})
		srv := &http.Server{Addr: cfg.Server.Bind, Handler: api.NewRouter(handler)}
		go func() {
			logger.Info("Status API listening on %s", cfg.Server.Bind)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Status API: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
	}

	tty := isTerminal(os.Stdout)
	scheduler := batch.NewScheduler(batch.SchedulerConfig{
		Runner:   runner,
		Workers:  cfg.Batch.MaxWorkers,
		Profile:  profile,
		Progress: agg,
		Registry: registry,
		Render: func(w []progress.WorkerProgress, total int) {
			display.Render(os.Stdout, w, total, tty)
		},
		Logger: logger,
	})

	fmt.Printf("Transcoding %d files with %d workers using %s\n", len(files), cfg.Batch.MaxWorkers, profile.Label)
	sum := scheduler.Run(ctx, files)
	interrupted := ctx.Err() != nil

	if cfg.Batch.AutoCleanup {
		if n, err := batch.CleanupTemp(cfg.Batch.Dir, cfg.Batch.Recursive, logger); err != nil {
			logger.Warn("Temp sweep: %v", err)
		} else if n > 0 {
			logger.Info("Removed %d temporary files", n)
		}
	}

	display.Report(os.Stdout, sum)
	for _, r := range sum.Results {
		if r.Outcome == transcode.Failed && r.Err != nil {
			logger.Error("%s: %v", r.Source, r.Err)
		}
	}

	if interrupted {
		return exitInterrupted
	}
	return 0
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
