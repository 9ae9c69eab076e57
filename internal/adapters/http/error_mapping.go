package httpadapter

import (
	"net/http"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

// publicErrors is checked in order; the first matching kind decides the
// response. Client-facing text never includes the underlying error.
var publicErrors = []struct {
	kind    error
	status  int
	message string
}{
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid request"},
	{domain.ErrTemporary, http.StatusServiceUnavailable, "service temporarily unavailable"},
}

const internalErrorMessage = "Internal processing error"

func mapErrorToHTTPStatus(err error) int {
	for _, e := range publicErrors {
		if domain.IsKind(err, e.kind) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func publicErrorMessage(status int) string {
	for _, e := range publicErrors {
		if e.status == status {
			return e.message
		}
	}
	return internalErrorMessage
}
