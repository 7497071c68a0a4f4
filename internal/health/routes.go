package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the health score and data availability endpoints.
func RegisterRoutes(r chi.Router, scorer *Scorer, counter Counter) {
	r.Get("/api/health-score", handleScore(scorer))
	r.Get("/api/availability", handleAvailability(counter))
}

func handleScore(scorer *Scorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID, periodID, ok := scopeParams(w, r)
		if !ok {
			return
		}

		score, err := scorer.ScoreFor(r.Context(), propertyID, periodID)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(score)
	}
}

func handleAvailability(counter Counter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID, periodID, ok := scopeParams(w, r)
		if !ok {
			return
		}

		av, err := CheckAvailability(r.Context(), counter, propertyID, periodID)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if av.Recommendations == nil {
			av.Recommendations = []string{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(av)
	}
}

func scopeParams(w http.ResponseWriter, r *http.Request) (propertyID, periodID string, ok bool) {
	q := r.URL.Query()
	propertyID = q.Get("property_id")
	periodID = q.Get("period_id")
	if propertyID == "" || periodID == "" {
		http.Error(w, `{"error":"property_id and period_id are required"}`, http.StatusBadRequest)
		return "", "", false
	}
	return propertyID, periodID, true
}
