// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package transcode

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ZSC714725/mnemosyne/internal/logger"
)

const (
	// TempPrefix starts the name of every in-progress encode output.
	TempPrefix = "mnemosyne_tmp_"
	// BackupSuffix is appended to a source while its replacement moves in.
	BackupSuffix = ".bak"
)

// TempPath is the encode output for source on worker, next to the source.
func TempPath(source string, worker int) string {
	dir, name := filepath.Split(source)
	return filepath.Join(dir, TempPrefix+strconv.Itoa(worker)+"_"+name)
}

// BackupPath is where source is kept during the swap.
func BackupPath(source string) string {
	return source + BackupSuffix
}

// Swap replaces src with tmp. src is first renamed to its backup, then tmp
// is renamed onto src and restore is called on it. At every step either src
// or its backup holds the original. If the file at src is then missing or
// smaller than MinOutputSize, or any step fails, the backup is moved back.
// The backup is deleted only after the new file is confirmed.
func Swap(src, tmp string, restore func(path string), log logger.Logger) (err error) {
	if log == nil {
		log = logger.Nop()
	}
	backup := BackupPath(src)

	if _, err := os.Lstat(backup); err == nil {
		return fmt.Errorf("%w: %s already exists", ErrSwap, backup)
	}
	if err := os.Rename(src, backup); err != nil {
		return fmt.Errorf("%w: %w", ErrSwap, err)
	}

	defer func() {
		if err == nil {
			return
		}
		if rerr := rollback(src, backup); rerr != nil {
			log.Error("rollback %s: %v", src, rerr)
			err = fmt.Errorf("%w (rollback: %v)", err, rerr)
		}
	}()

	if err := os.Rename(tmp, src); err != nil {
		return fmt.Errorf("%w: %w", ErrSwap, err)
	}
	if restore != nil {
		restore(src)
	}

	fi, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: after swap: %w", ErrSwap, err)
	}
	if fi.Size() < MinOutputSize {
		return fmt.Errorf("%w: %s is only %d bytes after swap", ErrSwap, src, fi.Size())
	}

	if err := os.Remove(backup); err != nil {
		// the new file is in place; an orphaned backup is reported by the audit
		log.Warn("remove backup %s: %v", backup, err)
	}
	return nil
}

// rollback puts the backup back at src, replacing whatever is there.
func rollback(src, backup string) error {
	if _, err := os.Lstat(backup); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(backup, src)
}
