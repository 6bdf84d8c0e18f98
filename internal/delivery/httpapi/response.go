package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/NasaVasa/hubalerts/internal/domain"
)

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeOK merges fields into a {"success": true} body.
func writeOK(w http.ResponseWriter, status int, fields envelope) {
	body := envelope{"success": true}
	for key, value := range fields {
		body[key] = value
	}
	writeJSON(w, status, body)
}

func writeFail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{"success": false, "error": message})
}

// errorStatus maps usecase errors onto HTTP statuses. Anything unrecognised is a 500 and
// its message is not echoed to the caller.
func errorStatus(err error) (int, string) {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Error()
	case errors.Is(err, domain.ErrUnknownChannel), errors.Is(err, domain.ErrInvalidDeal):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
