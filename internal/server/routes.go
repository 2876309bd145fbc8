// Package server wires HTTP handlers into a gorilla/mux router for the
// chat relay application.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures and returns the application router: health check,
// WebSocket endpoint, upload collaborator, static uploads, and metrics.
func SetupRoutes(hub *Hub) *mux.Router {
	cfg := currentConfig()

	router := mux.NewRouter()
	router.HandleFunc("/", HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/ws", WebSocketHandler(hub))
	router.HandleFunc("/upload", UploadHandler).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))),
	).Methods(http.MethodGet)
	return router
}
