package ailink

import (
	"context"
	"errors"
	"strings"

	"github.com/roboforge/roboforge/internal/ailink/driver"
)

// Error codes surfaced by MapError. They double as error envelope codes.
const (
	CodeNotConfigured = "AILINK_NOT_CONFIGURED"
	CodeAuth          = "AILINK_PROVIDER_AUTH"
	CodeRateLimit     = "AILINK_PROVIDER_RATE_LIMIT"
	CodeUnavailable   = "AILINK_PROVIDER_UNAVAILABLE"
	CodeBadRequest    = "AILINK_PROVIDER_BAD_REQUEST"
	CodeBadResponse   = "AILINK_PROVIDER_BAD_RESPONSE"
	CodeExhausted     = "AILINK_RETRIES_EXHAUSTED"
	CodeTimeout       = "AILINK_PROVIDER_TIMEOUT"
	CodeCanceled      = "AILINK_CANCELED"
	CodeProviderError = "AILINK_PROVIDER_ERROR"
)

// MapError converts a driver failure into a GenerationError keyed by kind.
func MapError(err error) *GenerationError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &GenerationError{Code: CodeTimeout, Message: "provider request timed out"}
	}
	if errors.Is(err, context.Canceled) {
		return &GenerationError{Code: CodeCanceled, Message: "request canceled"}
	}

	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil {
		details := strings.TrimSpace(perr.Message)
		out := &GenerationError{Kind: string(perr.Kind), Details: details, Retryable: perr.Retryable()}
		switch perr.Kind {
		case driver.KindConfiguration:
			out.Code, out.Message = CodeNotConfigured, "AI provider is not configured"
		case driver.KindInvalidCredential:
			out.Code, out.Message = CodeAuth, "provider authentication failed"
		case driver.KindRateLimited:
			out.Code, out.Message = CodeRateLimit, "provider rate limited"
		case driver.KindTransient:
			out.Code, out.Message = CodeUnavailable, "provider unavailable"
		case driver.KindMalformedRequest:
			out.Code, out.Message = CodeBadRequest, "provider rejected request"
		case driver.KindUnexpectedResponse:
			out.Code, out.Message = CodeBadResponse, "provider returned an unexpected response"
		case driver.KindRetriesExhausted:
			out.Code, out.Message = CodeExhausted, "provider unavailable after retries"
		default:
			out.Code, out.Message = CodeProviderError, "provider request failed"
		}
		return out
	}

	var gerr *GenerationError
	if errors.As(err, &gerr) {
		return gerr
	}
	return &GenerationError{Code: CodeProviderError, Message: "provider request failed", Details: err.Error()}
}
