package driver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindRetryable(t *testing.T) {
	retryable := map[ErrorKind]bool{
		KindConfiguration:      false,
		KindInvalidCredential:  false,
		KindRateLimited:        true,
		KindTransient:          true,
		KindMalformedRequest:   false,
		KindUnexpectedResponse: false,
		KindRetriesExhausted:   false,
	}
	for kind, want := range retryable {
		assert.Equal(t, want, kind.Retryable(), kind)
	}
}

func TestProviderErrorUnwrapAndKindOf(t *testing.T) {
	last := &ProviderError{Provider: "openai", Kind: KindTransient, StatusCode: 503, Message: "overloaded"}
	exhausted := &ProviderError{Provider: "openai", Kind: KindRetriesExhausted, Message: "retries exhausted: overloaded", Err: last}
	wrapped := fmt.Errorf("generate code: %w", exhausted)

	require.Equal(t, KindRetriesExhausted, KindOf(wrapped))
	require.True(t, errors.Is(wrapped, last))
	require.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	require.Contains(t, last.Error(), "status 503")
	require.NotContains(t, exhausted.Error(), "status")
}
