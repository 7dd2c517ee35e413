package api

import (
	"net/http"
	"time"

	"github.com/loomworks/loom/pkg/httputil"
)

const dashboardCacheKey = "dashboard:stats"

// DashboardStats is the aggregate served at /api/dashboard/stats
type DashboardStats struct {
	Users       int64     `json:"users"`
	Products    int64     `json:"products"`
	GeneratedAt time.Time `json:"generated_at"`
}

// dashboardStats handles GET /api/dashboard/stats. Served from the
// Redis cache when warm; writes to users or products invalidate it.
func (s *Server) dashboardStats(w http.ResponseWriter, r *http.Request) {
	var stats DashboardStats
	if s.cache.Get(r.Context(), dashboardCacheKey, &stats) {
		httputil.WriteSuccess(w, stats)
		return
	}

	userCount, err := s.users.Count(r.Context())
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	productCount, err := s.products.Count(r.Context())
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	stats = DashboardStats{
		Users:       userCount,
		Products:    productCount,
		GeneratedAt: time.Now().UTC(),
	}
	s.cache.Set(r.Context(), dashboardCacheKey, stats)
	httputil.WriteSuccess(w, stats)
}
