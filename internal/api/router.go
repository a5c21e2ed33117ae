package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sonatalabs/sonata/internal/api/handlers"
	"github.com/sonatalabs/sonata/pkg/logger"
)

// NewRouter wires all endpoints and middleware.
func NewRouter(
	symphonyHandler *handlers.SymphonyHandler,
	barHandler *handlers.BarHandler,
	backtestHandler *handlers.BacktestHandler,
	jobHandler *handlers.JobHandler,
	log *logger.Logger,
) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/symphonies", symphonyHandler.List).Methods("GET")
	api.HandleFunc("/symphonies/{name}", symphonyHandler.Get).Methods("GET")
	api.HandleFunc("/symphonies/{name}/evaluation", symphonyHandler.GetEvaluation).Methods("GET")

	api.HandleFunc("/bars/{symbol}", barHandler.Range).Methods("GET")

	api.HandleFunc("/backtests", backtestHandler.Run).Methods("POST")

	if jobHandler != nil {
		api.HandleFunc("/jobs", jobHandler.List).Methods("GET")
		api.HandleFunc("/jobs/{name}/run", jobHandler.Run).Methods("POST")
		api.HandleFunc("/jobs/{name}/history", jobHandler.History).Methods("GET")
	}

	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "sonata-api",
	})
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from handler panics.
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
