package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/crawlpix/crawlpix/internal/session"
)

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions := deps.Registry.List()
		if sessions == nil {
			sessions = []session.Snapshot{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"sessions": sessions,
			"count":    len(sessions),
		})
	}
}

// handleDeleteSession removes a session together with its vector namespace
// and any cached query results scoped to it.
func handleDeleteSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		s := deps.Registry.Get(id)
		if s == nil {
			httpError(w, http.StatusNotFound, "not_found", "session %s not found", id)
			return
		}

		if err := deps.Store.DeleteNamespace(r.Context(), s.Namespace); err != nil {
			// The registry entry still goes away; an orphaned collection is
			// recoverable, a ghost session is not.
			slog.Warn("vector namespace deletion failed", "session", id, "namespace", s.Namespace, "error", err)
		}
		deps.Cache.Invalidate(r.Context(), fmt.Sprintf("query:*:%s:*", s.Namespace))
		deps.Registry.Delete(id)

		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "session_id": id})
	}
}

// handleCleanup sweeps terminal sessions older than the configured age,
// deleting their vector namespaces and cached queries as well. An `hours`
// query parameter overrides the configured age for one sweep.
func handleCleanup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		age := deps.CleanupAge
		if raw := r.URL.Query().Get("hours"); raw != "" {
			hours, err := strconv.Atoi(raw)
			if err != nil || hours <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "hours must be a positive integer")
				return
			}
			age = time.Duration(hours) * time.Hour
		}

		namespaces := make(map[string]string)
		for _, snap := range deps.Registry.List() {
			namespaces[snap.ID] = snap.Namespace
		}

		deleted := deps.Registry.CleanupOlderThan(age)
		for _, id := range deleted {
			ns := namespaces[id]
			if ns == "" {
				continue
			}
			if err := deps.Store.DeleteNamespace(r.Context(), ns); err != nil {
				slog.Warn("vector namespace cleanup failed", "session", id, "namespace", ns, "error", err)
			}
			deps.Cache.Invalidate(r.Context(), fmt.Sprintf("query:*:%s:*", ns))
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"deleted":     deleted,
			"deleted_num": len(deleted),
		})
	}
}

func handleCacheStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"available": deps.Cache.Available(r.Context()),
			"kinds":     deps.Cache.StatsSnapshot(),
		})
	}
}
