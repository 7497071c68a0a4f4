package review

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/havenfield/reconcile/internal/discrepancy"
	"github.com/havenfield/reconcile/internal/match"
	"github.com/havenfield/reconcile/internal/session"
)

// RegisterRoutes mounts the review workflow endpoints.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Post("/api/matches/{id}/approve", handleApprove(svc))
	r.Post("/api/matches/{id}/reject", handleReject(svc))
	r.Post("/api/discrepancies/{id}/resolve", handleResolve(svc))
}

func handleApprove(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Actor string `json:"actor"`
		}
		decodeOptional(r, &req)

		m, err := svc.Approve(r.Context(), chi.URLParam(r, "id"), actorOrDefault(req.Actor))
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m)
	}
}

func handleReject(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Actor  string `json:"actor"`
			Reason string `json:"reason"`
		}
		decodeOptional(r, &req)

		m, err := svc.Reject(r.Context(), chi.URLParam(r, "id"), actorOrDefault(req.Actor), req.Reason)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m)
	}
}

func handleResolve(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Actor          string   `json:"actor"`
			Notes          string   `json:"notes"`
			CorrectedValue *float64 `json:"corrected_value"`
		}
		decodeOptional(r, &req)

		d, err := svc.Resolve(r.Context(), chi.URLParam(r, "id"), actorOrDefault(req.Actor), req.Notes, req.CorrectedValue)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(d)
	}
}

func decodeOptional(r *http.Request, dst any) {
	if r.ContentLength > 0 {
		json.NewDecoder(r.Body).Decode(dst)
	}
}

func actorOrDefault(actor string) string {
	if actor == "" {
		return "reviewer"
	}
	return actor
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, match.ErrNotFound), errors.Is(err, discrepancy.ErrNotFound), errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrReasonRequired):
		status = http.StatusBadRequest
	case errors.Is(err, ErrSessionCompleted), errors.Is(err, ErrSessionBusy), errors.Is(err, discrepancy.ErrAlreadyResolved):
		status = http.StatusConflict
	}
	http.Error(w, `{"error":"`+err.Error()+`"}`, status)
}
