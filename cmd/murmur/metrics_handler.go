package main

import (
	"net/http"

	"murmur/internal/metrics"
)

// handleMetrics dumps the in-memory metrics registry as JSON.
func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metrics.GetRegistry().Snapshot())
}
