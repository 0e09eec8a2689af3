// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package logger

import (
	"io"
	"log"
)

// Logger provides a simple logging interface
type Logger interface {
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

type defaultLogger struct {
	prefix string
	debug  bool
	out    *log.Logger
}

// New writes through the standard logger.
func New(prefix string) Logger {
	return &defaultLogger{prefix: prefix, out: log.Default()}
}

// NewWithOutput writes to w. Debug lines are dropped unless debug is set.
func NewWithOutput(prefix string, w io.Writer, debug bool) Logger {
	return &defaultLogger{
		prefix: prefix,
		debug:  debug,
		out:    log.New(w, "", log.LstdFlags),
	}
}

// Nop discards everything.
func Nop() Logger {
	return nopLogger{}
}

func (l *defaultLogger) Info(format string, args ...interface{}) {
	l.out.Printf("[INFO] "+l.prefix+format, args...)
}

func (l *defaultLogger) Warn(format string, args ...interface{}) {
	l.out.Printf("[WARN] "+l.prefix+format, args...)
}

func (l *defaultLogger) Error(format string, args ...interface{}) {
	l.out.Printf("[ERROR] "+l.prefix+format, args...)
}

func (l *defaultLogger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.out.Printf("[DEBUG] "+l.prefix+format, args...)
}

type nopLogger struct{}

func (nopLogger) Info(format string, args ...interface{})  {}
func (nopLogger) Warn(format string, args ...interface{})  {}
func (nopLogger) Error(format string, args ...interface{}) {}
func (nopLogger) Debug(format string, args ...interface{}) {}
