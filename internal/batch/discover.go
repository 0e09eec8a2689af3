// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package batch

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZSC714725/mnemosyne/internal/config"
)

// VideoExtensions are the file extensions picked up by discovery.
var VideoExtensions = []string{".mp4", ".mkv", ".avi", ".mov", ".flv", ".wmv", ".webm", ".ts", ".m4v"}

// skipDirs are never descended into.
var skipDirs = map[string]bool{"bin": true, "logs": true}

// File is a queued source
type File struct {
	Path string
	Size int64
}

// IsVideo reports whether name has a video extension, ignoring case.
func IsVideo(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range VideoExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Discover lists the video files under root. Without recursive only root
// itself is read. Temp outputs are never queued; filter may be nil.
func Discover(root string, recursive bool, filter Filter) ([]File, error) {
	var files []File

	err := walk(root, recursive, func(path string, d fs.DirEntry) error {
		name := d.Name()
		if !IsVideo(name) || IsTemp(name) {
			return nil
		}
		if filter != nil && !filter.Match(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// vanished between listing and stat
			return nil
		}
		files = append(files, File{Path: path, Size: info.Size()})
		return nil
	})
	return files, err
}

// walk calls fn for every regular file under root, pruning skipDirs.
func walk(root string, recursive bool, fn func(path string, d fs.DirEntry) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if !recursive || skipDirs[strings.ToLower(d.Name())] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return fn(path, d)
	})
}

// SortFiles orders files in place by mode. Unknown modes sort by name.
func SortFiles(files []File, mode string) {
	switch mode {
	case config.SortNameZA:
		sort.SliceStable(files, func(i, j int) bool { return files[i].Path > files[j].Path })
	case config.SortSizeDesc:
		sort.SliceStable(files, func(i, j int) bool { return files[i].Size > files[j].Size })
	case config.SortSizeAsc:
		sort.SliceStable(files, func(i, j int) bool { return files[i].Size < files[j].Size })
	default:
		sort.SliceStable(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	}
}
