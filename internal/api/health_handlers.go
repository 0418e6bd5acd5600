package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"
)

// handleHealth is a liveness probe: the process is up and serving.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(s.startTime).Seconds(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleReady reports whether the registry is still accepting attaches.
// The tail engine has no external dependency to probe (spec §6:
// "persistent state: none"), so readiness here just means Shutdown
// hasn't run yet.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := !s.registry.Closed()

	resp := map[string]interface{}{
		"ready":          ready,
		"active_streams": s.registry.StreamCount(),
		"memory_mb":      getMemoryUsageMB(),
	}

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// handleVersion reports build info.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"version": "0.1.0",
		"go":      runtime.Version(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func getMemoryUsageMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.Alloc) / 1024 / 1024
}
