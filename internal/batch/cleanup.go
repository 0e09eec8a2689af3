// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ZSC714725/mnemosyne/internal/config"
	"github.com/ZSC714725/mnemosyne/internal/logger"
	"github.com/ZSC714725/mnemosyne/internal/transcode"
)

// IsTemp reports whether name is a leftover encode output.
func IsTemp(name string) bool {
	if strings.HasPrefix(name, transcode.TempPrefix) {
		return true
	}
	return strings.HasPrefix(name, "temp_") && IsVideo(name)
}

// CleanupTemp removes leftover encode outputs under root and returns how
// many were removed.
func CleanupTemp(root string, recursive bool, log logger.Logger) (int, error) {
	if log == nil {
		log = logger.Nop()
	}
	removed := 0
	var errs []error

	err := walk(root, recursive, func(path string, d fs.DirEntry) error {
		if !IsTemp(d.Name()) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
			return nil
		}
		log.Debug("removed temp file %s", path)
		removed++
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	if removed > 0 {
		log.Info("Removed %d temporary files", removed)
	}
	return removed, errors.Join(errs...)
}

// Backup is an orphaned swap backup left by an interrupted run.
type Backup struct {
	Path           string `json:"path"`
	Original       string `json:"original"`
	OriginalExists bool   `json:"original_exists"`
}

// AuditReport lists the backups found and what was done to them.
type AuditReport struct {
	Found    []Backup
	Restored int
	Purged   int
	Kept     int
}

// AuditBackups finds orphaned backups under root. In report mode they are
// only logged; restore moves each back over its original path; purge
// deletes those whose original still exists and keeps the rest.
func AuditBackups(root string, recursive bool, mode string, log logger.Logger) (AuditReport, error) {
	if log == nil {
		log = logger.Nop()
	}
	var report AuditReport
	var errs []error

	err := walk(root, recursive, func(path string, d fs.DirEntry) error {
		if !strings.HasSuffix(d.Name(), transcode.BackupSuffix) {
			return nil
		}
		original := strings.TrimSuffix(path, transcode.BackupSuffix)
		if !IsVideo(original) {
			return nil
		}
		_, statErr := os.Stat(original)
		report.Found = append(report.Found, Backup{Path: path, Original: original, OriginalExists: statErr == nil})
		return nil
	})
	if err != nil {
		return report, err
	}

	for _, b := range report.Found {
		switch mode {
		case config.BackupsRestore:
			if err := os.Rename(b.Path, b.Original); err != nil {
				errs = append(errs, fmt.Errorf("restore %s: %w", b.Path, err))
				continue
			}
			log.Info("Restored backup %s", b.Original)
			report.Restored++
		case config.BackupsPurge:
			if !b.OriginalExists {
				log.Warn("Kept backup %s: %s is missing", b.Path, b.Original)
				report.Kept++
				continue
			}
			if err := os.Remove(b.Path); err != nil {
				errs = append(errs, fmt.Errorf("purge %s: %w", b.Path, err))
				continue
			}
			log.Info("Purged backup %s", b.Path)
			report.Purged++
		default:
			log.Warn("Orphaned backup found: %s", b.Path)
		}
	}
	return report, errors.Join(errs...)
}
