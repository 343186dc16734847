package ailink

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roboforge/roboforge/internal/ailink/driver"
)

func TestMapErrorByKind(t *testing.T) {
	cases := []struct {
		kind      driver.ErrorKind
		wantCode  string
		retryable bool
	}{
		{driver.KindConfiguration, CodeNotConfigured, false},
		{driver.KindInvalidCredential, CodeAuth, false},
		{driver.KindRateLimited, CodeRateLimit, true},
		{driver.KindTransient, CodeUnavailable, true},
		{driver.KindMalformedRequest, CodeBadRequest, false},
		{driver.KindUnexpectedResponse, CodeBadResponse, false},
		{driver.KindRetriesExhausted, CodeExhausted, false},
	}

	for _, tc := range cases {
		err := fmt.Errorf("wrapped: %w", &driver.ProviderError{Provider: "openai", Kind: tc.kind, Message: "boom"})
		mapped := MapError(err)
		require.NotNil(t, mapped)
		require.Equal(t, tc.wantCode, mapped.Code, tc.kind)
		require.Equal(t, string(tc.kind), mapped.Kind)
		require.Equal(t, "boom", mapped.Details)
		require.Equal(t, tc.retryable, mapped.Retryable)
	}
}

func TestMapErrorContext(t *testing.T) {
	require.Equal(t, CodeTimeout, MapError(context.DeadlineExceeded).Code)
	require.Equal(t, CodeCanceled, MapError(context.Canceled).Code)
	require.Nil(t, MapError(nil))
	require.Equal(t, CodeProviderError, MapError(fmt.Errorf("other")).Code)
}
