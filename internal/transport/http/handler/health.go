package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// DependencyCheck probes one backing service. A nil Check marks the
// dependency as disabled by configuration.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type HealthInfo struct {
	App       string
	Env       string
	StartedAt time.Time
}

type HealthHandler struct {
	info   HealthInfo
	checks []DependencyCheck
}

type dependencyStatus struct {
	OK       bool   `json:"ok"`
	Disabled bool   `json:"disabled,omitempty"`
	Message  string `json:"message,omitempty"`
}

func NewHealthHandler(info HealthInfo, checks ...DependencyCheck) *HealthHandler {
	return &HealthHandler{info: info, checks: checks}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	allOK := true
	dependencies := gin.H{}
	for _, check := range h.checks {
		status := runCheck(ctx, check)
		allOK = allOK && status.OK
		dependencies[check.Name] = status
	}

	statusCode := http.StatusOK
	if !allOK {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"app":          h.info.App,
		"env":          h.info.Env,
		"uptime_sec":   int(time.Since(h.info.StartedAt).Seconds()),
		"dependencies": dependencies,
	})
}

func runCheck(ctx context.Context, check DependencyCheck) dependencyStatus {
	if check.Check == nil {
		return dependencyStatus{OK: true, Disabled: true}
	}
	if err := check.Check(ctx); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}
