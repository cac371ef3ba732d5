package api

import (
	"net/http"
)

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// HealthHandler serves GET /api/v1/health.
func HealthHandler(serviceName, version string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{
			Status:  "healthy",
			Service: serviceName,
			Version: version,
		})
	})
}
