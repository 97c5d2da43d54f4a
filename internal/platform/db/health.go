package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// Probe is one dependency reported by the health endpoint. Detail is optional
// and rendered whether or not Check passes.
type Probe struct {
	Name   string
	Check  func(ctx context.Context) error
	Detail func() any
}

// PoolProbe pings the session database.
func PoolProbe(pool *pgxpool.Pool) Probe {
	return Probe{
		Name:   "database",
		Check:  pool.Ping,
		Detail: func() any { return GetPoolStats(pool) },
	}
}

// ProbeResult is the rendered state of one probe.
type ProbeResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Detail any    `json:"detail,omitempty"`
}

// HealthReport is the health endpoint body.
type HealthReport struct {
	Status     string                 `json:"status"`
	Components map[string]ProbeResult `json:"components,omitempty"`
}

// RunProbes checks every probe under one deadline.
func RunProbes(ctx context.Context, timeout time.Duration, probes ...Probe) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report := HealthReport{Status: "healthy", Components: make(map[string]ProbeResult, len(probes))}
	for _, p := range probes {
		res := ProbeResult{Status: "healthy"}
		if p.Check != nil {
			if err := p.Check(ctx); err != nil {
				res.Status = "unhealthy"
				res.Error = err.Error()
				report.Status = "unhealthy"
			}
		}
		if p.Detail != nil {
			res.Detail = p.Detail()
		}
		report.Components[p.Name] = res
	}
	return report
}

// HealthHandler returns a handler for the health check endpoint. It answers
// 503 when any probe fails.
func HealthHandler(probes ...Probe) echo.HandlerFunc {
	return func(c echo.Context) error {
		report := RunProbes(c.Request().Context(), 5*time.Second, probes...)
		status := http.StatusOK
		if report.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, report)
	}
}
