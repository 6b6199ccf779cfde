package server

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON 은 v 를 JSON 으로 직렬화해 status 와 함께 쓴다.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("response encode failed")
		status = http.StatusInternalServerError
		data = []byte(`{"error":"Internal server error"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg, detail string) {
	writeJSON(w, r, status, errorBody{Error: msg, Message: detail})
}

func writeInternal(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusInternalServerError, "Internal server error", "An unexpected error occurred")
}
