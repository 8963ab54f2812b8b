package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/cloudcrate/cloudcrate/internal/apperr"
	"github.com/cloudcrate/cloudcrate/internal/auth"
)

var tracer = otel.Tracer("cloudcrate-handlers")

type errorResponse struct {
	Error     string `json:"error"`
	Quota     int64  `json:"quota,omitempty"`
	Used      int64  `json:"used,omitempty"`
	Available int64  `json:"available,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("failed to encode response")
	}
}

// writeError maps application error kinds onto HTTP statuses. Unknown
// errors are logged and reported as a bare 500.
func writeError(w http.ResponseWriter, err error) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		log.Error().Err(err).Msg("internal error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict, apperr.KindNotEmpty:
		status = http.StatusConflict
	case apperr.KindQuotaExceeded:
		status = http.StatusRequestEntityTooLarge
	case apperr.KindUnsupportedType:
		status = http.StatusUnsupportedMediaType
	case apperr.KindStorageUnavailable:
		status = http.StatusServiceUnavailable
	case apperr.KindValidation:
		status = http.StatusBadRequest
	}

	resp := errorResponse{Error: err.Error()}
	var ae *apperr.Error
	if errors.As(err, &ae) && kind == apperr.KindQuotaExceeded {
		resp.Quota = ae.Quota
		resp.Used = ae.Used
		resp.Available = ae.Available
	}
	writeJSON(w, status, resp)
}

// callerID extracts the verified identity or fails the request.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}
