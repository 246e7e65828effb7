// Package httpadapter exposes the sync core over a small ops HTTP surface:
// artifact retrieval, poll control and cache administration. The real UI
// talks to the remote service directly; this surface exists for the client
// daemon's own callers and for operators.
package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kirillkom/docsync/internal/core/ports"
	"github.com/kirillkom/docsync/internal/observability/metrics"
)

type Router struct {
	artifacts ports.ArtifactService
	watcher   ports.StatusWatcher
	metrics   *metrics.SyncMetrics
	service   string

	// pollCtx outlives individual requests; polls started over HTTP keep
	// running after the starting request returns.
	pollCtx context.Context

	rateLimiter *rateLimitMiddleware
}

type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(
	pollCtx context.Context,
	artifacts ports.ArtifactService,
	watcher ports.StatusWatcher,
	syncMetrics *metrics.SyncMetrics,
	service string,
	options Options,
) *Router {
	if pollCtx == nil {
		pollCtx = context.Background()
	}
	return &Router{
		artifacts:   artifacts,
		watcher:     watcher,
		metrics:     syncMetrics,
		service:     service,
		pollCtx:     pollCtx,
		rateLimiter: newRateLimitMiddleware(options.RateLimitRPS, options.RateLimitBurst),
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", rt.handleHealth)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /v1/subjects/{id}/artifact", rt.handleRequestArtifact)
	api.HandleFunc("POST /v1/subjects/{id}/watch", rt.handleStartWatch)
	api.HandleFunc("DELETE /v1/subjects/{id}/watch", rt.handleCancelWatch)
	api.HandleFunc("GET /v1/subjects/{id}/poll", rt.handlePollState)
	api.HandleFunc("DELETE /v1/subjects/{id}/cache", rt.handleInvalidateSubject)
	api.HandleFunc("GET /v1/cache/stats", rt.handleCacheStats)
	api.HandleFunc("DELETE /v1/cache", rt.handleClearCache)

	mux.Handle("/v1/", rt.rateLimiter.Handler(api))

	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
