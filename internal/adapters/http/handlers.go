package httpadapter

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/docsync/internal/core/domain"
)

func (rt *Router) handleRequestArtifact(w http.ResponseWriter, r *http.Request) {
	subjectID := r.PathValue("id")
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = "full"
	}

	start := time.Now()
	result, err := rt.artifacts.RequestArtifact(r.Context(), subjectID, scope)
	if rt.metrics != nil {
		rt.metrics.ObserveArtifactRequest(rt.service, result.Source, time.Since(start), err)
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (rt *Router) handleStartWatch(w http.ResponseWriter, r *http.Request) {
	subjectID := r.PathValue("id")
	if subjectID == "" {
		respondError(w, http.StatusBadRequest, "missing subject id")
		return
	}

	if rt.metrics != nil {
		// A restart supersedes any active poll, whose terminal event
		// will never fire.
		if state, found := rt.watcher.StateOf(subjectID); found && !state.Phase.Terminal() && !state.Cancelled {
			rt.metrics.CancelPoll()
		}
		rt.metrics.StartPoll()
	}
	rt.watcher.Start(rt.pollCtx, subjectID, func(event domain.PollEvent) {
		if rt.metrics != nil {
			rt.metrics.ObservePollEvent(rt.service, event)
		}
		if event.Phase.Terminal() {
			slog.Info("watch_terminal",
				"subject_id", event.SubjectID,
				"phase", string(event.Phase),
				"attempt", event.Attempt,
			)
		}
	})

	state, _ := rt.watcher.StateOf(subjectID)
	respondJSON(w, http.StatusAccepted, state)
}

func (rt *Router) handleCancelWatch(w http.ResponseWriter, r *http.Request) {
	subjectID := r.PathValue("id")

	if state, found := rt.watcher.StateOf(subjectID); found {
		if rt.metrics != nil && !state.Phase.Terminal() && !state.Cancelled {
			rt.metrics.CancelPoll()
		}
	}
	rt.watcher.Cancel(subjectID)
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handlePollState(w http.ResponseWriter, r *http.Request) {
	subjectID := r.PathValue("id")
	state, found := rt.watcher.StateOf(subjectID)
	if !found {
		respondError(w, http.StatusNotFound, "no poll for subject")
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (rt *Router) handleInvalidateSubject(w http.ResponseWriter, r *http.Request) {
	if err := rt.artifacts.InvalidateSubject(r.Context(), r.PathValue("id")); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.artifacts.CacheStats(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.SetCacheEntries(stats.TotalEntries)
	}
	respondJSON(w, http.StatusOK, stats)
}

func (rt *Router) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := rt.artifacts.ClearCache(r.Context()); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case domain.IsKind(err, domain.ErrFatal):
		respondError(w, http.StatusBadGateway, err.Error())
	case domain.IsKind(err, domain.ErrTransient):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
