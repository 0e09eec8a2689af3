// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package process

import (
	"bytes"
	"container/ring"
	"sync"
	"time"
)

// Line is a timestamped log line
type Line struct {
	Timestamp time.Time
	Data      string
}

// tail keeps the last n lines written to it. It is used as the stderr sink
// of an encoder so failures can be logged with context.
type tail struct {
	lock    sync.Mutex
	log     *ring.Ring
	partial []byte
}

func newTail(n int) *tail {
	if n <= 0 {
		n = 50
	}
	return &tail{log: ring.New(n)}
}

func (t *tail) Write(b []byte) (int, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	data := append(t.partial, b...)
	for {
		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			break
		}
		if i > 0 {
			t.push(string(data[:i]))
		}
		data = data[i+1:]
	}
	t.partial = append([]byte(nil), data...)
	return len(b), nil
}

func (t *tail) push(s string) {
	t.log.Value = Line{Timestamp: time.Now(), Data: s}
	t.log = t.log.Next()
}

// Lines returns the retained lines, oldest first, including any
// unterminated trailing fragment.
func (t *tail) Lines() []Line {
	t.lock.Lock()
	defer t.lock.Unlock()

	var out []Line
	t.log.Do(func(v interface{}) {
		if v != nil {
			out = append(out, v.(Line))
		}
	})
	if len(t.partial) > 0 {
		out = append(out, Line{Timestamp: time.Now(), Data: string(t.partial)})
	}
	return out
}
