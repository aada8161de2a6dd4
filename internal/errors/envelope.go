package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
)

// Envelope codes used by the CLI and the mock API server.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
	CodeTimeout            = "TIMEOUT"
	CodeRetriesExhausted   = "RETRIES_EXHAUSTED"
	CodePaginationOverrun  = "PAGINATION_OVERRUN"
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeRequestCanceled    = "REQUEST_CANCELED"
	CodeUpstreamRejected   = "UPSTREAM_REJECTED"
)

func NewInvalidInputError(message string) *gferrors.ErrorEnvelope {
	return gferrors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *gferrors.ErrorEnvelope {
	return gferrors.NewErrorEnvelope(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *gferrors.ErrorEnvelope {
	return gferrors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

func NewRateLimitedError(message string) *gferrors.ErrorEnvelope {
	return gferrors.NewErrorEnvelope(CodeRateLimited, message)
}

func NewConfigInvalidError(message string) *gferrors.ErrorEnvelope {
	return gferrors.NewErrorEnvelope(CodeConfigInvalid, message)
}

func NewInternalError(message string) *gferrors.ErrorEnvelope {
	return gferrors.NewErrorEnvelope(CodeInternal, message)
}

// ToEnvelope converts any error into a gofulmen envelope, carrying the
// taxonomy kind and the most useful diagnostic fields as context.
func ToEnvelope(err error) *gferrors.ErrorEnvelope {
	if err == nil {
		env := gferrors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		env, _ = env.WithSeverity(gferrors.SeverityCritical)
		return env
	}

	var envelope *gferrors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}

	kind := KindOf(err)
	details := map[string]interface{}{
		"kind":          kind.String(),
		"wrapped_error": err.Error(),
	}
	severity := gferrors.SeverityHigh

	var code string
	switch kind {
	case KindThrottled:
		code = CodeRateLimited
		severity = gferrors.SeverityMedium
	case KindServerFault:
		code = CodeExternalService
	case KindTransient:
		code = CodeTimeout
		severity = gferrors.SeverityMedium
	case KindRequestRejected:
		code = CodeUpstreamRejected
		severity = gferrors.SeverityMedium
	case KindRetriesExhausted:
		code = CodeRetriesExhausted
		var exhausted *RetriesExhaustedError
		if stderrors.As(err, &exhausted) {
			details["reason"] = exhausted.Reason
			details["attempts"] = exhausted.Attempts
			details["total_backoff"] = exhausted.TotalBackoff.String()
		}
	case KindPaginationOverrun:
		code = CodePaginationOverrun
		var overrun *PaginationOverrunError
		if stderrors.As(err, &overrun) {
			details["pages"] = overrun.Pages
			details["limit"] = overrun.Limit
		}
	case KindCanceled:
		code = CodeRequestCanceled
		severity = gferrors.SeverityMedium
	default:
		code = CodeInternal
	}

	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		if apiErr.Status > 0 {
			details["status"] = apiErr.Status
		}
		if apiErr.Code != "" {
			details["api_code"] = apiErr.Code
		}
		if apiErr.RequestID != "" {
			details["request_id"] = apiErr.RequestID
		}
	}

	env := gferrors.NewErrorEnvelope(code, err.Error())
	if updated, ctxErr := env.WithContext(details); ctxErr == nil {
		env = updated
	}
	if updated, sevErr := env.WithSeverity(severity); sevErr == nil {
		env = updated
	}
	return env
}

// HTTPStatusFromCode resolves the HTTP status code corresponding to an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeExternalService, CodeRetriesExhausted:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorBody is the error object returned by the mock API server. Its shape
// matches what the client transport decodes.
type HTTPErrorBody struct {
	Object    string `json:"object"`
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// RespondWithError normalizes err and writes a JSON error response.
func RespondWithError(w http.ResponseWriter, requestID string, err error) {
	RespondWithEnvelope(w, requestID, ToEnvelope(err))
}

// RespondWithEnvelope writes envelope as the API error object.
func RespondWithEnvelope(w http.ResponseWriter, requestID string, envelope *gferrors.ErrorEnvelope) {
	if w == nil {
		return
	}
	if envelope == nil {
		envelope = ToEnvelope(nil)
	}
	if requestID == "" {
		requestID = envelope.CorrelationID
	}
	if requestID == "" {
		requestID = uuid.New().String()
	}

	status := HTTPStatusFromCode(envelope.Code)
	body := HTTPErrorBody{
		Object:    "error",
		Status:    status,
		Code:      envelope.Code,
		Message:   envelope.Message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
