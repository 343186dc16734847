package driver

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTracerWritesNDJSON(t *testing.T) {
	var buf bytes.Buffer
	SetTracer(NewTracer(&buf))
	t.Cleanup(func() { SetTracer(nil) })

	Trace(TraceEntry{Driver: "openai", Endpoint: "/chat/completions", Attempt: 1, StatusCode: 429, Kind: KindRateLimited})
	Trace(TraceEntry{Driver: "openai", Endpoint: "/chat/completions", Attempt: 2, StatusCode: 200})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first TraceEntry
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.Equal(t, 1, first.Attempt)
	require.Equal(t, KindRateLimited, first.Kind)
	require.False(t, first.Timestamp.IsZero())
}

func TestTraceWithoutTracerIsNoop(t *testing.T) {
	SetTracer(nil)
	Trace(TraceEntry{Driver: "openai"})
}
