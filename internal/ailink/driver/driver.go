package driver

import (
	"context"

	"github.com/roboforge/roboforge/internal/ailink/content"
)

// Driver defines the interface for AI completion providers.
type Driver interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Name returns the driver identifier (e.g., "openai").
	Name() string
	// Capabilities returns what this driver supports.
	Capabilities() Capabilities
}

// ImageGenerator is implemented by drivers that can render images.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error)
}

// Capabilities describes driver features.
type Capabilities struct {
	SupportsImages     bool
	SupportsImageInput bool
	MaxAttempts        int
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is a provider-agnostic completion request.
//
// A Request is built once per logical operation and is not mutated by drivers,
// so the same value is re-sent on every retry attempt.
type Request struct {
	Model            string
	Messages         []content.Message
	Temperature      *float64
	MaxTokens        *int
	PresencePenalty  *float64
	FrequencyPenalty *float64
	PromptSlug       string
	Metadata         map[string]string
}

// Response is a provider-agnostic completion response.
type Response struct {
	Content      []content.ContentBlock
	FinishReason string
	Usage        *Usage
	// Attempts is the number of dispatches it took to obtain this response.
	Attempts int
}

// Text returns the concatenated text content of the response.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return content.JoinText(r.Content)
}

// ImageRequest asks a provider to render an image from a prompt.
type ImageRequest struct {
	Model   string
	Prompt  string
	Count   int
	Size    string
	Quality string
	Style   string
}

// ImageResponse carries the rendered image references.
type ImageResponse struct {
	Created int64
	// URLs holds hosted asset URLs in provider order.
	URLs []string
	// RevisedPrompt is the prompt the provider actually rendered, when reported.
	RevisedPrompt string
}

// Float is a convenience for optional float request fields.
func Float(v float64) *float64 { return &v }

// Int is a convenience for optional int request fields.
func Int(v int) *int { return &v }
