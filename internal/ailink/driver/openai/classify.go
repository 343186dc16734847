package openai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/roboforge/roboforge/internal/ailink/driver"
)

// apiError is the vendor's error object, present on failed responses and
// occasionally inside 2xx bodies.
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    any    `json:"code,omitempty"`
}

type errorEnvelope struct {
	Error *apiError `json:"error"`
}

// classifyStatus maps a non-2xx response to a ProviderError. It returns nil
// for 2xx statuses; body-level checks happen while parsing.
func classifyStatus(status int, body []byte) *driver.ProviderError {
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		return nil
	}

	vendorMsg := vendorMessage(body)
	pe := &driver.ProviderError{Provider: providerName, StatusCode: status, RawResponse: body}

	switch {
	case status == http.StatusUnauthorized:
		pe.Kind = driver.KindInvalidCredential
		pe.Message = "invalid credential"
	case status == http.StatusTooManyRequests:
		pe.Kind = driver.KindRateLimited
		pe.Message = "rate limited by vendor"
	case status >= http.StatusInternalServerError:
		pe.Kind = driver.KindTransient
		pe.Message = vendorMsg
	default:
		pe.Kind = driver.KindMalformedRequest
		pe.Message = vendorMsg
	}
	if pe.Message == "" {
		pe.Message = fmt.Sprintf("HTTP %d", status)
	}
	return pe
}

func vendorMessage(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return ""
	}
	return strings.TrimSpace(env.Error.Message)
}

func unexpectedShape(msg string, body []byte) *driver.ProviderError {
	return &driver.ProviderError{
		Provider:    providerName,
		Kind:        driver.KindUnexpectedResponse,
		Message:     msg,
		RawResponse: body,
	}
}
