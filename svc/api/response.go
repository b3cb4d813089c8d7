package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrymomot/arcana/pkg/recovery"
	"github.com/dmitrymomot/arcana/pkg/subscription"
)

// Envelope is the body of every response.
type Envelope struct {
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail is the error member of a failed response.
type ErrorDetail struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Data: data})
}

func fail(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Envelope{Error: &ErrorDetail{Code: code, Message: message}})
}

// platformError renders a subscription error with its friendly message.
func platformError(w http.ResponseWriter, err error) {
	kind := subscription.KindOf(err)
	writeJSON(w, statusForKind(kind), Envelope{Error: &ErrorDetail{
		Code:        kind.String(),
		Message:     recovery.UserMessage(err),
		Suggestions: recovery.RecoverySuggestions(err),
	}})
}

func statusForKind(k subscription.ErrorKind) int {
	switch k {
	case subscription.KindNetwork:
		return http.StatusServiceUnavailable
	case subscription.KindPlatform, subscription.KindServer,
		subscription.KindVerificationFailed, subscription.KindRestorationFailed:
		return http.StatusBadGateway
	case subscription.KindPaymentFailed, subscription.KindSubscriptionExpired:
		return http.StatusPaymentRequired
	case subscription.KindAlreadySubscribed, subscription.KindPurchaseCancelled:
		return http.StatusConflict
	case subscription.KindInvalidProduct:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// bindJSON decodes a single strict JSON object from r into v.
func bindJSON(r *http.Request, v any) error {
	mediaType, _, _ := strings.Cut(r.Header.Get("Content-Type"), ";")
	switch strings.TrimSpace(mediaType) {
	case "application/json":
	case "":
		return ErrMissingContentType
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType)
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrInvalidJSON)
		}
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after object", ErrInvalidJSON)
	}
	return nil
}
