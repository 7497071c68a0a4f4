package lineitem

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts line-item ingestion and query endpoints.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/line-items", func(r chi.Router) {
		r.Post("/", handleIngest(store))
		r.Get("/", handleList(store))
	})
}

type ingestRequest struct {
	PropertyID string     `json:"property_id"`
	PeriodID   string     `json:"period_id"`
	Items      []LineItem `json:"items"`
}

func handleIngest(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.PropertyID == "" || req.PeriodID == "" {
			http.Error(w, `{"error":"property_id and period_id are required"}`, http.StatusBadRequest)
			return
		}
		for i := range req.Items {
			req.Items[i].PropertyID = req.PropertyID
			req.Items[i].PeriodID = req.PeriodID
			if !req.Items[i].DocumentType.Valid() {
				http.Error(w, `{"error":"unknown document type"}`, http.StatusBadRequest)
				return
			}
		}

		n, err := store.InsertBatch(r.Context(), req.Items)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]int{"ingested": n})
	}
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		propertyID := q.Get("property_id")
		periodID := q.Get("period_id")
		docType := DocumentType(q.Get("document_type"))

		if propertyID == "" || periodID == "" || !docType.Valid() {
			http.Error(w, `{"error":"property_id, period_id and document_type are required"}`, http.StatusBadRequest)
			return
		}

		items, err := store.GetLineItems(r.Context(), propertyID, periodID, docType)
		if errors.Is(err, ErrUnavailable) {
			items = []LineItem{}
		} else if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(items)
	}
}
