package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx reply from the operational
// endpoints of the tag and the gateway.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path,omitempty"`
}

// WriteJSON sends v with status. The header is already out when encoding
// fails, so the error is only worth logging.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) error {
	return WriteJSON(w, status, ErrorResponse{
		Status:  status,
		Error:   http.StatusText(status),
		Message: msg,
		Path:    r.URL.Path,
	})
}
