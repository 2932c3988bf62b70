package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jaywantadh/fragments/internal/convert"
	"github.com/jaywantadh/fragments/internal/fragment"
	"github.com/jaywantadh/fragments/internal/storage"
)

const (
	msgUnsupportedType  = "Unsupported fragment type requested by the client!"
	msgCannotConvert    = "The fragment cannot be converted into the extension specified!"
	msgUnknownExtension = "The extension specified is not recognized!"
	msgTypeMismatch     = "A fragment's type can not be changed after it is created."
	msgMalformedContent = "The fragment data could not be parsed for conversion."
	msgUnavailable      = "Storage is temporarily unavailable, try again later."
	msgCorrupt          = "The stored fragment data could not be read."
	msgTooLarge         = "The request body is too large."
	msgUnauthorized     = "Unauthorized"
	msgUnexpected       = "Unexpected server error"
)

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Status string   `json:"status"`
	Error  apiError `json:"error"`
}

// mapError decides the status and client message for err. id names the
// fragment in not-found messages.
func mapError(err error, id string) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, msgTooLarge
	case errors.Is(err, fragment.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, fmt.Sprintf("No fragment with ID %s found", id)
	case errors.Is(err, fragment.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, msgUnsupportedType
	case errors.Is(err, fragment.ErrTypeMismatch):
		return http.StatusBadRequest, msgTypeMismatch
	case errors.Is(err, fragment.ErrValidation), errors.Is(err, fragment.ErrInvalidData):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, convert.ErrConversionNotSupported):
		return http.StatusUnsupportedMediaType, msgCannotConvert
	case errors.Is(err, convert.ErrUnknownExtension):
		return http.StatusBadRequest, msgUnknownExtension
	case errors.Is(err, convert.ErrMalformedContent):
		return http.StatusUnprocessableEntity, msgMalformedContent
	case errors.Is(err, storage.ErrCorrupt):
		return http.StatusInternalServerError, msgCorrupt
	case errors.Is(err, storage.ErrUnavailable):
		return http.StatusServiceUnavailable, msgUnavailable
	default:
		return http.StatusInternalServerError, msgUnexpected
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// writeOK writes {"status":"ok", ...fields}.
func writeOK(w http.ResponseWriter, r *http.Request, status int, fields map[string]any) {
	body := map[string]any{"status": "ok"}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, r, status, body)
}

func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, errorEnvelope{
		Status: "error",
		Error:  apiError{Code: status, Message: message},
	})
}
