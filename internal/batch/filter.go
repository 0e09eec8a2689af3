// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package batch

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter decides whether a discovered path joins the queue
type Filter interface {
	Match(path string) bool
}

type filter struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewFilter creates a Filter from include and exclude expressions. Empty
// expressions are ignored; with no include expression everything not
// excluded matches.
func NewFilter(include, exclude []string) (Filter, error) {
	f := &filter{}

	var err error
	if f.include, err = compile("include", include); err != nil {
		return nil, err
	}
	if f.exclude, err = compile("exclude", exclude); err != nil {
		return nil, err
	}
	return f, nil
}

func compile(kind string, exps []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, exp := range exps {
		exp = strings.TrimSpace(exp)
		if exp == "" {
			continue
		}
		re, err := regexp.Compile(exp)
		if err != nil {
			return nil, fmt.Errorf("invalid %s expression '%s': %w", kind, exp, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (f *filter) Match(path string) bool {
	for _, e := range f.exclude {
		if e.MatchString(path) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, e := range f.include {
		if e.MatchString(path) {
			return true
		}
	}
	return false
}
