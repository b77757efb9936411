package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/analyze", handler.TriggerBatch).Methods("POST")
	api.HandleFunc("/analyze/{ticker}", handler.AnalyzeTicker).Methods("POST")
	api.HandleFunc("/latest", handler.GetLatest).Methods("GET")
	api.HandleFunc("/macro/latest", handler.GetLatestMacro).Methods("GET")

	return r
}
