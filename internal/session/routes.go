package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/havenfield/reconcile/internal/matching"
)

// RegisterRoutes mounts the session lifecycle endpoints.
func RegisterRoutes(r chi.Router, store *Store, orch *Orchestrator) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", handleCreate(orch))
		r.Get("/", handleList(store))
		r.Get("/{id}", handleGetByID(store))
		r.Post("/{id}/reconcile", handleReconcile(orch))
		r.Get("/{id}/summary", handleSummary(store))
		r.Post("/{id}/complete", handleComplete(orch))
	})
}

func handleCreate(orch *Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PropertyID  string `json:"property_id"`
			PeriodID    string `json:"period_id"`
			SessionType string `json:"session_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.PropertyID == "" || req.PeriodID == "" {
			http.Error(w, `{"error":"property_id and period_id are required"}`, http.StatusBadRequest)
			return
		}

		sess, err := orch.CreateSession(r.Context(), req.PropertyID, req.PeriodID, req.SessionType)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(sess)
	}
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{
			PropertyID: q.Get("property_id"),
			PeriodID:   q.Get("period_id"),
			Status:     Status(q.Get("status")),
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}
		if v := q.Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Offset = n
			}
		}

		sessions, err := store.List(r.Context(), filter)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if sessions == nil {
			sessions = []Session{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sessions)
	}
}

func handleGetByID(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := store.GetByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sess)
	}
}

func handleReconcile(orch *Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flags := matching.AllTiers()
		if r.ContentLength > 0 {
			var req struct {
				Tiers *matching.TierFlags `json:"tiers"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
				return
			}
			if req.Tiers != nil {
				flags = *req.Tiers
			}
		}

		result, err := orch.Run(r.Context(), chi.URLParam(r, "id"), flags)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func handleSummary(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := store.GetByID(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}

		summary, err := store.Summary(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summary)
	}
}

func handleComplete(orch *Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := orch.Complete(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sess)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, ErrInvalidTransition):
		status = http.StatusConflict
	}
	http.Error(w, `{"error":"`+err.Error()+`"}`, status)
}
