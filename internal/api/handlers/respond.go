package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/zhaoqi/breadth/internal/contracts"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseDay accepts the provider's YYYYMMDD spelling.
func parseDay(s string) (time.Time, error) {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, err
	}
	return contracts.Day(t), nil
}
