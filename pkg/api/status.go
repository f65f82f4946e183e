package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"fsrewire/pkg/model"
)

// RegisterRoutes wires the status API onto mux. j may be nil when the
// journal is disabled.
func RegisterRoutes(mux *http.ServeMux, src StateSource, j JournalReader, hub *WSHub) {
	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, src.State())
	})
	mux.HandleFunc("/api/v1/journal", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if j == nil {
			http.Error(w, "journal disabled", http.StatusNotFound)
			return
		}
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		entries, err := j.Recent(r.Context(), limit)
		if err != nil {
			log.Printf("journal read failed: %v", err)
			http.Error(w, "failed to read journal", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []model.ReconcileEntry{}
		}
		writeJSON(w, http.StatusOK, JournalResponse{Entries: entries})
	})
	mux.HandleFunc("/api/v1/ws", hub.HandleStatusWS(src))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}
