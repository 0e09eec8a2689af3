// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter mounts the status routes under /api/v3.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), cors.Default())

	v3 := r.Group("/api/v3")
	{
		v3.GET("/progress", h.Progress)

		v3.GET("/jobs", h.ListJobs)
		v3.GET("/jobs/:id", h.GetJob)

		v3.GET("/process", h.ListProcesses)

		v3.GET("/skills", h.Skills)
		v3.POST("/skills/reload", h.ReloadSkills)

		v3.POST("/cancel", h.Cancel)
	}
	return r
}
