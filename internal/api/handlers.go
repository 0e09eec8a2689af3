// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ZSC714725/mnemosyne/internal/ffmpeg/skills"
	"github.com/ZSC714725/mnemosyne/internal/process"
	"github.com/ZSC714725/mnemosyne/internal/progress"
	"github.com/ZSC714725/mnemosyne/internal/task"

	"github.com/gin-gonic/gin"
)

// SkillsSource provides detected FFmpeg capabilities
type SkillsSource interface {
	Skills() skills.Skills
	ReloadSkills() error
}

// HandlerConfig holds the collaborators of a Handler. Any of them may be
// nil; the matching routes then answer with empty data or 503.
type HandlerConfig struct {
	Jobs     task.Store
	Progress *progress.Aggregator
	Registry *process.Registry
	Skills   SkillsSource
	Codec    string
	Total    int
	Cancel   context.CancelFunc
}

// Handler holds dependencies
type Handler struct {
	jobs     task.Store
	progress *progress.Aggregator
	registry *process.Registry
	skills   SkillsSource
	codec    string
	total    int
	cancel   context.CancelFunc
}

// NewHandler creates API handler
func NewHandler(config HandlerConfig) *Handler {
	h := &Handler{
		jobs:     config.Jobs,
		progress: config.Progress,
		registry: config.Registry,
		skills:   config.Skills,
		codec:    config.Codec,
		total:    config.Total,
		cancel:   config.Cancel,
	}
	if h.progress == nil {
		h.progress = progress.New()
	}
	if h.jobs == nil {
		h.jobs = task.NewStore(nil)
	}
	return h
}

func errResp(c *gin.Context, code int, msg, detail string) {
	c.JSON(code, ErrorResponse{Code: code, Message: msg, Detail: detail})
}

// Progress GET /api/v3/progress
func (h *Handler) Progress(c *gin.Context) {
	resp := ProgressResponse{
		Workers: h.progress.List(),
		Total:   h.total,
		Done:    len(h.jobs.List(task.Done)),
		Failed:  len(h.jobs.List(task.Failed)),
	}
	for _, w := range resp.Workers {
		if w.Active() {
			resp.Active++
		}
	}
	c.JSON(http.StatusOK, resp)
}

// ListJobs GET /api/v3/jobs
func (h *Handler) ListJobs(c *gin.Context) {
	var states []task.State
	if s := c.DefaultQuery("state", ""); s != "" {
		for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' }) {
			state := task.State(strings.TrimSpace(part))
			if !state.Valid() {
				errResp(c, http.StatusBadRequest, "Invalid state", string(state))
				return
			}
			states = append(states, state)
		}
	}
	c.JSON(http.StatusOK, JobsResponse{Jobs: h.jobs.List(states...)})
}

// GetJob GET /api/v3/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	j, err := h.jobs.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			errResp(c, http.StatusNotFound, "Unknown job ID", "")
			return
		}
		errResp(c, http.StatusInternalServerError, "Get job failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, j)
}

// ListProcesses GET /api/v3/process
func (h *Handler) ListProcesses(c *gin.Context) {
	out := []ProcessState{}
	if h.registry != nil {
		for _, s := range h.registry.Statuses() {
			out = append(out, ProcessState{
				Pid:     s.Pid,
				State:   s.State,
				Runtime: int64(s.Duration.Seconds()),
				Memory:  s.Memory.Current,
				CPU:     s.CPU.Current,
			})
		}
	}
	c.JSON(http.StatusOK, out)
}

// Skills GET /api/v3/skills
func (h *Handler) Skills(c *gin.Context) {
	if h.skills == nil {
		errResp(c, http.StatusServiceUnavailable, "FFmpeg not available", "")
		return
	}
	c.JSON(http.StatusOK, skillsToAPI(h.skills.Skills(), h.codec))
}

// ReloadSkills POST /api/v3/skills/reload
func (h *Handler) ReloadSkills(c *gin.Context) {
	if h.skills == nil {
		errResp(c, http.StatusServiceUnavailable, "FFmpeg not available", "")
		return
	}
	if err := h.skills.ReloadSkills(); err != nil {
		errResp(c, http.StatusInternalServerError, "Reload failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, skillsToAPI(h.skills.Skills(), h.codec))
}

// Cancel POST /api/v3/cancel
func (h *Handler) Cancel(c *gin.Context) {
	if h.cancel == nil {
		errResp(c, http.StatusConflict, "No run to cancel", "")
		return
	}
	h.cancel()
	c.String(http.StatusOK, "OK")
}
