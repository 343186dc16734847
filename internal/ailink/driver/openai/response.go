package openai

import (
	"encoding/json"

	"github.com/roboforge/roboforge/internal/ailink/content"
	"github.com/roboforge/roboforge/internal/ailink/driver"
)

type chatCompletionResponse struct {
	Choices []choice  `json:"choices"`
	Usage   *usage    `json:"usage,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type choice struct {
	Message      *chatResponseMessage `json:"message"`
	FinishReason string               `json:"finish_reason"`
}

type chatResponseMessage struct {
	Content *string `json:"content"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// parseChatResponse validates a 2xx body. An error object inside the body is
// treated as a malformed request; a body without choices[0].message is an
// unexpected shape.
func parseChatResponse(body []byte) (*driver.Response, error) {
	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, unexpectedShape("unexpected response shape", body)
	}
	if parsed.Error != nil {
		msg := parsed.Error.Message
		if msg == "" {
			msg = "vendor reported an error"
		}
		return nil, &driver.ProviderError{Provider: providerName, Kind: driver.KindMalformedRequest, Message: msg, RawResponse: body}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil {
		return nil, unexpectedShape("unexpected response shape", body)
	}

	first := parsed.Choices[0]
	text := ""
	if first.Message.Content != nil {
		text = *first.Message.Content
	}
	response := &driver.Response{
		Content:      []content.ContentBlock{content.Text(text)},
		FinishReason: first.FinishReason,
	}
	if parsed.Usage != nil {
		response.Usage = &driver.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}
	return response, nil
}
