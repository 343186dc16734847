package ailink

import (
	"fmt"
	"strings"

	"github.com/roboforge/roboforge/internal/ailink/prompt"
)

// Artifact names a generated output kind.
type Artifact string

const (
	ArtifactCode    Artifact = "code"
	ArtifactParts   Artifact = "parts"
	ArtifactCircuit Artifact = "circuit"
	ArtifactModel   Artifact = "model"
	ArtifactPreview Artifact = "preview"
	ArtifactSearch  Artifact = "search"
	ArtifactImage   Artifact = "image"
)

var artifactSlugs = map[Artifact]string{
	ArtifactCode:    prompt.SlugArduinoCode,
	ArtifactParts:   prompt.SlugPartsList,
	ArtifactCircuit: prompt.SlugCircuitSVG,
	ArtifactModel:   prompt.SlugModel3D,
	ArtifactPreview: prompt.SlugPreviewSVG,
	ArtifactSearch:  prompt.SlugWebSearch,
}

// TextArtifacts lists artifacts produced by chat completions, in forge order.
var TextArtifacts = []Artifact{ArtifactParts, ArtifactCode, ArtifactCircuit, ArtifactModel, ArtifactPreview}

// ParseArtifact validates a user-supplied artifact name.
func ParseArtifact(s string) (Artifact, error) {
	a := Artifact(strings.ToLower(strings.TrimSpace(s)))
	if a == ArtifactImage {
		return a, nil
	}
	if _, ok := artifactSlugs[a]; ok {
		return a, nil
	}
	return "", fmt.Errorf("unknown artifact %q", s)
}

// PromptSlug returns the prompt that produces the artifact.
func (a Artifact) PromptSlug() string {
	return artifactSlugs[a]
}

// GenerateRequest is the high-level request for one prompt run.
type GenerateRequest struct {
	PromptSlug string
	// Description is the natural-language robot description (or query for search).
	Description string
	ImageURL    string
	Parts       []string
	Model       string
	Variables   map[string]string
}

// GenerateResponse carries one generated artifact.
type GenerateResponse struct {
	PromptSlug string `json:"prompt"`
	Content    string `json:"content"`
	Format     string `json:"format"`
	Extension  string `json:"extension,omitempty"`
	MediaType  string `json:"media_type,omitempty"`
	Model      string `json:"model"`
	Attempts   int    `json:"attempts"`
}

// ImageResult is a rendered concept image.
type ImageResult struct {
	URL           string `json:"url"`
	Prompt        string `json:"prompt"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
	RobotType     string `json:"robot_type"`
}

// GenerationError captures an ailink failure in a caller-friendly shape.
type GenerationError struct {
	Code      string `json:"code"`
	Kind      string `json:"kind,omitempty"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
}

func (e *GenerationError) Error() string {
	if e == nil {
		return "generation failed"
	}
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}
