// Package api mounts the HTTP routes.
package api

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"resolvarr/handlers"
)

// requestIDMiddleware tags every request with an id for log correlation.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		short := id
		if len(short) > 8 {
			short = short[:8]
		}

		started := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[api] %s %s %s (%s)", short, r.Method, r.URL.Path, time.Since(started).Round(time.Millisecond))
	})
}

// corsMiddleware handles CORS for API routes; media players fetch stream
// lists cross-origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	streamsHandler *handlers.StreamsHandler,
	resolveHandler *handlers.ResolveHandler,
	healthHandler *handlers.HealthHandler,
) {
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(requestIDMiddleware, corsMiddleware)

	apiRouter.HandleFunc("/streams/{mediaType}/{contentID}", streamsHandler.ServeStreams).Methods(http.MethodGet, http.MethodOptions)
	apiRouter.HandleFunc("/resolve", resolveHandler.ServeResolve).Methods(http.MethodGet, http.MethodOptions)
	apiRouter.HandleFunc("/health", healthHandler.ServeHealth).Methods(http.MethodGet, http.MethodOptions)
}
