package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/ceramicstudio/js-glaze-sub000/datastore"
	"github.com/ceramicstudio/js-glaze-sub000/docproxy"
	"github.com/ceramicstudio/js-glaze-sub000/docstore"
)

var errRequestBody = errors.New("reading request body failed")

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, datastore.ErrEmptyEntryKey),
		errors.Is(err, datastore.ErrInvalidEntryJSON),
		errors.Is(err, docproxy.ErrEmptyDocumentName),
		errors.Is(err, errRequestBody):
		return http.StatusBadRequest
	case errors.Is(err, datastore.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, docstore.ErrConcurrencyConflict),
		errors.Is(err, datastore.ErrDocumentNotAnIndex):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	payload, err := codec.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		payload = []byte(`{"error":"encoding response failed"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
