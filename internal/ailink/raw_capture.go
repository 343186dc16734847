package ailink

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/roboforge/roboforge/internal/ailink/driver"
)

func truncateJSONRaw(input json.RawMessage, max int) json.RawMessage {
	if max <= 0 {
		return nil
	}
	if len(input) <= max {
		return input
	}
	out := make(json.RawMessage, 0, max)
	out = append(out, input[:max]...)
	return out
}

// captureRaw returns the vendor body attached to err when raw capture is on.
// Non-JSON bodies are quoted so the result is always valid JSON.
func captureRaw(cfg Config, err error) json.RawMessage {
	if !cfg.Debug.CaptureRawEnabled || err == nil {
		return nil
	}
	var perr *driver.ProviderError
	if !errors.As(err, &perr) || len(perr.RawResponse) == 0 {
		return nil
	}
	raw := json.RawMessage(perr.RawResponse)
	if !json.Valid(raw) {
		quoted, mErr := quoteJSON(safeOneLine(string(perr.RawResponse)))
		if mErr != nil {
			return nil
		}
		raw = quoted
	}
	limit := cfg.Debug.CaptureRawMaxBytes
	if limit <= 0 || len(raw) <= limit {
		return raw
	}
	// A truncated document is no longer valid JSON; carry it as a string.
	quoted, mErr := quoteJSON(string(truncateJSONRaw(raw, limit)))
	if mErr != nil {
		return nil
	}
	return quoted
}

// quoteJSON encodes s as a JSON string without HTML escaping so captured
// bodies stay readable in logs.
func quoteJSON(s string) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

func safeOneLine(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

// stripFences removes a surrounding markdown code fence, which models add
// despite being told not to.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		trimmed = trimmed[nl+1:]
	} else {
		return ""
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
