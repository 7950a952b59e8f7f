package handler

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"runtime"
	"syscall"
	"time"

	"github.com/mewspay/vpos/bank"
	"github.com/mewspay/vpos/gateway"
	"github.com/mewspay/vpos/infra/config"
	"github.com/mewspay/vpos/infra/response"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db        *sql.DB
	banks     bank.Directory
	registry  *gateway.Registry
	checkout  CheckoutService
	startTime time.Time
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version"`
	Timestamp   time.Time                 `json:"timestamp"`
	Uptime      string                    `json:"uptime"`
	Environment string                    `json:"environment"`
	Database    *DatabaseHealth           `json:"database"`
	Gateways    *GatewayHealth            `json:"gateways"`
	System      *SystemHealth             `json:"system"`
	Services    map[string]*ServiceHealth `json:"services"`
}

// DatabaseHealth represents database health status
type DatabaseHealth struct {
	Status       string        `json:"status"`
	Connected    bool          `json:"connected"`
	ResponseTime time.Duration `json:"response_time_ms"`
	OpenConns    int           `json:"open_connections"`
	InUseConns   int           `json:"in_use_connections"`
	IdleConns    int           `json:"idle_connections"`
	Version      string        `json:"version,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// GatewayHealth represents the registered gateway adapters
type GatewayHealth struct {
	Registered []string `json:"registered"`
	Count      int      `json:"count"`
}

// SystemHealth represents system resource health
type SystemHealth struct {
	Memory     *MemoryHealth `json:"memory"`
	Disk       *DiskHealth   `json:"disk"`
	GoRoutines int           `json:"goroutines"`
}

// MemoryHealth represents memory usage
type MemoryHealth struct {
	Alloc        string  `json:"alloc"`
	TotalAlloc   string  `json:"total_alloc"`
	Sys          string  `json:"sys"`
	GCRuns       uint32  `json:"gc_runs"`
	UsagePercent float64 `json:"usage_percent"`
}

// DiskHealth represents disk usage
type DiskHealth struct {
	Available    string  `json:"available"`
	Used         string  `json:"used"`
	Total        string  `json:"total"`
	UsagePercent float64 `json:"usage_percent"`
	Status       string  `json:"status"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status      string `json:"status"`
	Healthy     bool   `json:"healthy"`
	LastCheck   string `json:"last_check"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *sql.DB, banks bank.Directory, registry *gateway.Registry, checkout CheckoutService) *HealthHandler {
	return &HealthHandler{
		db:        db,
		banks:     banks,
		registry:  registry,
		checkout:  checkout,
		startTime: time.Now(),
	}
}

// CheckHealth performs comprehensive health checks
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	health := &HealthStatus{
		Version:     "1.0.0",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).String(),
		Environment: getEnvironment(),
		Database:    h.checkDatabaseHealth(ctx),
		Gateways:    h.checkGatewayHealth(),
		System:      h.checkSystemHealth(),
		Services:    h.checkServicesHealth(),
	}

	// Determine overall status
	health.Status = h.determineOverallStatus(health)

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	_ = response.WriteJSON(w, statusCode, response.Response{
		Success: health.Status != "unhealthy",
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

// checkDatabaseHealth checks SQLite database health
func (h *HealthHandler) checkDatabaseHealth(ctx context.Context) *DatabaseHealth {
	dbHealth := &DatabaseHealth{
		Status:    "unknown",
		Connected: false,
	}

	if h.db == nil {
		dbHealth.Status = "not_configured"
		dbHealth.Error = "Database not configured"
		return dbHealth
	}

	start := time.Now()

	if err := h.db.PingContext(ctx); err != nil {
		dbHealth.Status = "unhealthy"
		dbHealth.Error = err.Error()
		dbHealth.ResponseTime = time.Since(start)
		return dbHealth
	}

	dbHealth.Connected = true
	dbHealth.ResponseTime = time.Since(start)

	stats := h.db.Stats()
	dbHealth.OpenConns = stats.OpenConnections
	dbHealth.InUseConns = stats.InUse
	dbHealth.IdleConns = stats.Idle

	var version string
	if err := h.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err == nil {
		dbHealth.Version = version
	}

	if dbHealth.ResponseTime > 1*time.Second {
		dbHealth.Status = "degraded"
	} else {
		dbHealth.Status = "healthy"
	}

	return dbHealth
}

// checkGatewayHealth reports the registered gateway adapters
func (h *HealthHandler) checkGatewayHealth() *GatewayHealth {
	kinds := h.registry.Kinds()
	registered := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		registered = append(registered, string(kind))
	}

	return &GatewayHealth{
		Registered: registered,
		Count:      len(registered),
	}
}

// checkSystemHealth checks system resource health
func (h *HealthHandler) checkSystemHealth() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &SystemHealth{
		Memory: &MemoryHealth{
			Alloc:        formatBytes(memStats.Alloc),
			TotalAlloc:   formatBytes(memStats.TotalAlloc),
			Sys:          formatBytes(memStats.Sys),
			GCRuns:       memStats.NumGC,
			UsagePercent: calculateMemoryUsagePercent(memStats),
		},
		Disk:       h.getDiskUsage(),
		GoRoutines: runtime.NumGoroutine(),
	}
}

// checkServicesHealth checks individual service health
func (h *HealthHandler) checkServicesHealth() map[string]*ServiceHealth {
	services := make(map[string]*ServiceHealth)
	now := time.Now().UTC().Format(time.RFC3339)

	services["checkout_service"] = &ServiceHealth{
		LastCheck: now,
	}
	if h.checkout != nil {
		services["checkout_service"].Status = "healthy"
		services["checkout_service"].Healthy = true
		services["checkout_service"].Description = "Payment orchestration service"
	} else {
		services["checkout_service"].Status = "unhealthy"
		services["checkout_service"].Healthy = false
		services["checkout_service"].Error = "Checkout service not initialized"
	}

	services["bank_directory"] = &ServiceHealth{
		LastCheck: now,
	}
	if h.banks != nil {
		if _, err := h.banks.DefaultBank(); err != nil {
			services["bank_directory"].Status = "degraded"
			services["bank_directory"].Healthy = true
			services["bank_directory"].Error = err.Error()
			services["bank_directory"].Description = "No default bank configured"
		} else {
			services["bank_directory"].Status = "healthy"
			services["bank_directory"].Healthy = true
			services["bank_directory"].Description = "Bank profile directory"
		}
	} else {
		services["bank_directory"].Status = "unhealthy"
		services["bank_directory"].Healthy = false
		services["bank_directory"].Error = "Bank directory not initialized"
	}

	return services
}

// determineOverallStatus determines overall system status
func (h *HealthHandler) determineOverallStatus(health *HealthStatus) string {
	if health.Database != nil && health.Database.Status == "unhealthy" {
		return "unhealthy"
	}

	for _, service := range health.Services {
		if !service.Healthy {
			return "unhealthy"
		}
	}

	// At least one gateway adapter must be registered
	if health.Gateways != nil && health.Gateways.Count == 0 {
		return "unhealthy"
	}

	if health.System != nil {
		if health.System.Memory.UsagePercent > 90 {
			return "degraded"
		}
		if health.System.Disk != nil && health.System.Disk.UsagePercent > 90 {
			return "degraded"
		}
	}

	if health.Database != nil && health.Database.Status == "degraded" {
		return "degraded"
	}

	return "healthy"
}

// Helper functions

func getEnvironment() string {
	if env := config.GetEnv("ENVIRONMENT", ""); env != "" {
		return env
	}
	return "development"
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func calculateMemoryUsagePercent(memStats runtime.MemStats) float64 {
	return (float64(memStats.Alloc) / float64(memStats.Sys)) * 100
}

func (h *HealthHandler) getDiskUsage() *DiskHealth {
	var stat syscall.Statfs_t
	wd := "/"

	disk := &DiskHealth{
		Status: "unknown",
	}

	if err := syscall.Statfs(wd, &stat); err != nil {
		disk.Status = "error"
		return disk
	}

	available := stat.Bavail * uint64(stat.Bsize)
	total := stat.Blocks * uint64(stat.Bsize)
	used := total - (stat.Bfree * uint64(stat.Bsize))

	disk.Available = formatBytes(available)
	disk.Total = formatBytes(total)
	disk.Used = formatBytes(used)
	disk.UsagePercent = (float64(used) / float64(total)) * 100

	if disk.UsagePercent > 90 {
		disk.Status = "critical"
	} else if disk.UsagePercent > 80 {
		disk.Status = "warning"
	} else {
		disk.Status = "healthy"
	}

	return disk
}
