package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"amza-pricing-api/internal/model"
	"amza-pricing-api/internal/quota"
	"amza-pricing-api/internal/repository"
	"amza-pricing-api/pkg/response"
)

// StatsSource reports store statistics.
type StatsSource interface {
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	budget     quota.Budget
	store      StatsSource
	callLogs   repository.CallLogRepository
	dbType     string // sqlite or postgres
	budgetType string // memory, redis or store
	startTime  time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(
	budget quota.Budget,
	store StatsSource,
	callLogs repository.CallLogRepository,
	dbType, budgetType string,
) *AdminHandler {
	return &AdminHandler{
		budget:     budget,
		store:      store,
		callLogs:   callLogs,
		dbType:     dbType,
		budgetType: budgetType,
		startTime:  time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.dbType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	// Token budget
	if h.budget != nil {
		usage, err := h.budget.Usage(ctx)
		if err == nil {
			stats["token_budget"] = map[string]interface{}{
				"backend":         h.budgetType,
				"daily_limit":     usage.DailyLimit,
				"used_today":      usage.UsedToday,
				"remaining":       usage.Remaining(),
				"last_reset_date": usage.LastResetDate.Format("2006-01-02"),
				"status":          "ok",
			}
		} else {
			stats["token_budget"] = map[string]interface{}{
				"backend": h.budgetType,
				"status":  "error",
				"error":   err.Error(),
			}
		}
	} else {
		stats["token_budget"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	// Store stats
	if h.store != nil {
		storeStats, err := h.store.GetStats(ctx)
		if err == nil {
			storeStats["status"] = "connected"
			stats["store"] = storeStats
		} else {
			stats["store"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["store"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// GetCallLogs handles GET /api/v1/admin/call-logs
func (h *AdminHandler) GetCallLogs(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)

	logs, total, err := h.callLogs.ListCallLogs(r.Context(), limit, (page-1)*limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if logs == nil {
		logs = []model.ProviderCallLog{}
	}
	response.JSONWithMeta(w, http.StatusOK, logs, page, limit, total)
}
