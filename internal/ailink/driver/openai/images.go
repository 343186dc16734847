package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roboforge/roboforge/internal/ailink/driver"
	"github.com/roboforge/roboforge/internal/metrics"
)

// Image defaults for concept renders.
const (
	DefaultImageModel   = "dall-e-3"
	DefaultImageSize    = "1024x1024"
	DefaultImageQuality = "hd"
	DefaultImageStyle   = "natural"
)

type imageGenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Style          string `json:"style,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type imageGenerationResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url,omitempty"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

// GenerateImage requests a hosted image. It shares pacing and classification
// with Complete but makes exactly one attempt.
func (c *Client) GenerateImage(ctx context.Context, req *driver.ImageRequest) (*driver.ImageResponse, error) {
	if c == nil {
		return nil, fmt.Errorf("openai client not configured")
	}
	if err := c.checkCredential(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	count := req.Count
	if count <= 0 {
		count = 1
	}
	if count > 10 {
		return nil, fmt.Errorf("count must be between 1 and 10")
	}

	payload := imageGenerationRequest{
		Model:          firstNonEmpty(req.Model, DefaultImageModel),
		Prompt:         req.Prompt,
		N:              count,
		Size:           firstNonEmpty(req.Size, DefaultImageSize),
		Quality:        firstNonEmpty(req.Quality, DefaultImageQuality),
		Style:          firstNonEmpty(req.Style, DefaultImageStyle),
		ResponseFormat: "url",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	const endpoint = "/images/generations"
	res, err := c.dispatch(ctx, c.pacer(), endpoint, body, payload.Model, "robot-image", 1)
	if err != nil {
		return nil, err
	}
	if perr := classifyStatus(res.status, res.body); perr != nil {
		perr.Attempts = 1
		metrics.RecordVendorError(endpoint, string(perr.Kind))
		return nil, perr
	}

	var parsed imageGenerationResponse
	if err := json.Unmarshal(res.body, &parsed); err != nil {
		return nil, unexpectedShape("no asset URL returned", res.body)
	}
	if parsed.Error != nil {
		return nil, &driver.ProviderError{Provider: providerName, Kind: driver.KindMalformedRequest, Message: parsed.Error.Message, RawResponse: res.body, Attempts: 1}
	}

	out := &driver.ImageResponse{Created: parsed.Created}
	for _, item := range parsed.Data {
		if url := strings.TrimSpace(item.URL); url != "" {
			out.URLs = append(out.URLs, url)
			if out.RevisedPrompt == "" {
				out.RevisedPrompt = item.RevisedPrompt
			}
		}
	}
	if len(out.URLs) == 0 {
		metrics.RecordVendorError(endpoint, string(driver.KindUnexpectedResponse))
		return nil, unexpectedShape("no asset URL returned", res.body)
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
