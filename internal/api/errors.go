package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hurttlocker/langextract/internal/arbitrate"
	"github.com/hurttlocker/langextract/internal/extract"
	"github.com/hurttlocker/langextract/internal/ingest"
	"github.com/hurttlocker/langextract/internal/llm"
	"github.com/hurttlocker/langextract/internal/orchestrator"
	"github.com/hurttlocker/langextract/internal/speech"
	"github.com/hurttlocker/langextract/internal/store"
)

var (
	errBadRequest  = errors.New("bad request")
	errUnavailable = errors.New("not configured")
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps pipeline errors to HTTP status codes. Arbitration failures
// are checked before the causes they wrap.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, extract.ErrEmptyText),
		errors.Is(err, arbitrate.ErrInvalidRequest),
		errors.Is(err, ingest.ErrEmptyDocument),
		errors.Is(err, ingest.ErrUnsupported),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, arbitrate.ErrPartialArbitration),
		errors.Is(err, arbitrate.ErrRefereeFailure),
		errors.Is(err, extract.ErrMalformedExtraction),
		errors.Is(err, orchestrator.ErrEmptyReply),
		errors.Is(err, speech.ErrNoSpeech):
		return http.StatusBadGateway
	case errors.Is(err, llm.ErrModelUnavailable),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return 499
	default:
		var se *speech.ServiceError
		if errors.As(err, &se) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}
