package discrepancy

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts read-only discrepancy endpoints. Resolution lives in
// the review package.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/discrepancies", func(r chi.Router) {
		r.Get("/", handleList(store))
		r.Get("/{id}", handleGetByID(store))
	})
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{SessionID: q.Get("session_id")}
		if filter.SessionID == "" {
			http.Error(w, `{"error":"session_id is required"}`, http.StatusBadRequest)
			return
		}
		if v := q.Get("severity"); v != "" {
			sev := Severity(v)
			if !sev.Valid() {
				http.Error(w, `{"error":"unknown severity"}`, http.StatusBadRequest)
				return
			}
			filter.Severity = sev
		}
		if v := q.Get("resolution_state"); v != "" {
			filter.ResolutionState = ResolutionState(v)
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

		discs, err := store.List(r.Context(), filter)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if discs == nil {
			discs = []Discrepancy{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(discs)
	}
}

func handleGetByID(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := store.GetByID(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrNotFound) {
			http.Error(w, `{"error":"discrepancy not found"}`, http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(d)
	}
}
