package ailink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/roboforge/roboforge/internal/ailink/content"
	"github.com/roboforge/roboforge/internal/ailink/driver"
	"github.com/roboforge/roboforge/internal/ailink/driver/openai"
	"github.com/roboforge/roboforge/internal/ailink/pacing"
	"github.com/roboforge/roboforge/internal/ailink/prompt"
	"github.com/roboforge/roboforge/internal/metrics"
)

// Service renders prompts and runs them through the vendor client.
type Service struct {
	Driver  driver.Driver
	Images  driver.ImageGenerator
	Prompts prompt.Registry
	Config  Config
	Logger  *logging.Logger
}

// NewService wires the OpenAI client, the shared pacer and the prompt registry
// from cfg. The pacer is process-wide unless cfg asks for a non-default interval.
func NewService(cfg Config, logger *logging.Logger) (*Service, error) {
	registry, err := prompt.RegistryWithOverrides(cfg.PromptsDir)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	client := openai.NewClient(cfg.BaseURL, cfg.APIKey)
	client.Timeout = cfg.DefaultTimeout
	client.MaxAttempts = cfg.MaxAttempts
	client.Logger = logger
	client.Pacer = pacerFor(cfg.MinInterval)

	return &Service{
		Driver:  client,
		Images:  client,
		Prompts: registry,
		Config:  cfg,
		Logger:  logger,
	}, nil
}

func pacerFor(interval time.Duration) *pacing.Pacer {
	if interval <= 0 || interval == pacing.DefaultInterval {
		return pacing.Default()
	}
	return pacing.New(interval, nil)
}

// Generate runs a prompt and returns its artifact.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if s == nil || s.Driver == nil {
		return nil, errors.New("ailink driver not configured")
	}
	if s.Prompts == nil {
		return nil, errors.New("ailink prompt registry not configured")
	}

	def, err := s.Prompts.Get(req.PromptSlug)
	if err != nil {
		return nil, err
	}

	vars := map[string]string{
		"description": strings.TrimSpace(req.Description),
		"query":       strings.TrimSpace(req.Description),
		"parts":       strings.Join(cleanParts(req.Parts), ", "),
	}
	for k, v := range req.Variables {
		vars[k] = v
	}

	system, user, err := prompt.Render(def, vars)
	if err != nil {
		return nil, err
	}

	imageURL := ""
	if def.Config.Input.AcceptsImages {
		imageURL = req.ImageURL
	}

	model := firstNonEmpty(req.Model, def.Config.Sampling.Model, s.Config.DefaultModel, DefaultModel)
	dreq := &driver.Request{
		Model: model,
		Messages: []content.Message{
			content.System(system),
			content.User(user, imageURL),
		},
		Temperature: def.Config.Sampling.Temperature,
		PromptSlug:  def.Config.Slug,
	}
	if def.Config.Sampling.MaxTokens > 0 {
		dreq.MaxTokens = driver.Int(def.Config.Sampling.MaxTokens)
	}

	start := time.Now()
	resp, err := s.Driver.Complete(ctx, dreq)
	metrics.RecordGeneration(def.Config.Slug, err == nil, time.Since(start))
	if err != nil {
		s.logFailure(def.Config.Slug, err, time.Since(start))
		return nil, err
	}
	s.logDebug("generation completed",
		zap.String("prompt", def.Config.Slug),
		zap.Int("attempts", resp.Attempts),
		zap.Duration("elapsed", time.Since(start)),
	)

	body := resp.Text()
	if def.Config.Output.Format != "text" {
		body = stripFences(body)
	}

	return &GenerateResponse{
		PromptSlug: def.Config.Slug,
		Content:    body,
		Format:     def.Config.Output.Format,
		Extension:  def.Config.Output.Extension,
		MediaType:  def.Config.Output.MediaType,
		Model:      model,
		Attempts:   resp.Attempts,
	}, nil
}

// GenerateArtifact runs the prompt behind a text artifact.
func (s *Service) GenerateArtifact(ctx context.Context, artifact Artifact, description, imageURL string, parts []string) (*GenerateResponse, error) {
	slug := artifact.PromptSlug()
	if slug == "" {
		return nil, fmt.Errorf("artifact %q is not a text artifact", artifact)
	}
	return s.Generate(ctx, GenerateRequest{PromptSlug: slug, Description: description, ImageURL: imageURL, Parts: parts})
}

// GenerateArduinoCode produces a complete Arduino sketch.
func (s *Service) GenerateArduinoCode(ctx context.Context, description, imageURL string) (string, error) {
	return s.text(ctx, GenerateRequest{PromptSlug: prompt.SlugArduinoCode, Description: description, ImageURL: imageURL})
}

// GeneratePartsList produces a CSV bill of materials.
func (s *Service) GeneratePartsList(ctx context.Context, description, imageURL string) (string, error) {
	return s.text(ctx, GenerateRequest{PromptSlug: prompt.SlugPartsList, Description: description, ImageURL: imageURL})
}

// GenerateCircuitDesign produces an SVG wiring diagram.
func (s *Service) GenerateCircuitDesign(ctx context.Context, description string, parts []string) (string, error) {
	return s.text(ctx, GenerateRequest{PromptSlug: prompt.SlugCircuitSVG, Description: description, Parts: parts})
}

// Generate3DModel produces an ASCII STL model.
func (s *Service) Generate3DModel(ctx context.Context, description string, parts []string) (string, error) {
	return s.text(ctx, GenerateRequest{PromptSlug: prompt.SlugModel3D, Description: description, Parts: parts})
}

// Generate3DPreviewSVG produces a three-view SVG drawing.
func (s *Service) Generate3DPreviewSVG(ctx context.Context, description string, parts []string) (string, error) {
	return s.text(ctx, GenerateRequest{PromptSlug: prompt.SlugPreviewSVG, Description: description, Parts: parts})
}

// SearchWeb answers a free-form research query.
func (s *Service) SearchWeb(ctx context.Context, query string) (string, error) {
	return s.text(ctx, GenerateRequest{PromptSlug: prompt.SlugWebSearch, Description: query})
}

// QuickCode backs the simple codegen endpoint.
func (s *Service) QuickCode(ctx context.Context, description string) (string, error) {
	return s.text(ctx, GenerateRequest{PromptSlug: prompt.SlugCodegen, Description: description})
}

// CheckAPIHealth sends a tiny completion and reports whether it succeeded.
func (s *Service) CheckAPIHealth(ctx context.Context) bool {
	_, err := s.text(ctx, GenerateRequest{PromptSlug: prompt.SlugHealth})
	return err == nil
}

// GenerateRobotImage renders a photorealistic concept image and returns its URL.
func (s *Service) GenerateRobotImage(ctx context.Context, description string) (*ImageResult, error) {
	if s == nil || s.Images == nil {
		return nil, errors.New("image generation not configured")
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, errors.New("description is required")
	}

	look := InterpretRobot(description)
	imgPrompt := BuildImagePrompt(description, look)
	start := time.Now()
	resp, err := s.Images.GenerateImage(ctx, &driver.ImageRequest{
		Model:   firstNonEmpty(s.Config.ImageModel, DefaultImageModel),
		Prompt:  imgPrompt,
		Count:   1,
		Size:    openai.DefaultImageSize,
		Quality: openai.DefaultImageQuality,
		Style:   openai.DefaultImageStyle,
	})
	metrics.RecordGeneration("image", err == nil, time.Since(start))
	if err != nil {
		s.logFailure("robot-image", err, time.Since(start))
		return nil, err
	}
	return &ImageResult{
		URL:           resp.URLs[0],
		Prompt:        imgPrompt,
		RevisedPrompt: resp.RevisedPrompt,
		RobotType:     look.Type,
	}, nil
}

func (s *Service) text(ctx context.Context, req GenerateRequest) (string, error) {
	resp, err := s.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Placeholder returns the stand-in content shown for an artifact that failed.
func Placeholder(artifact Artifact, err error) string {
	msg := "unknown error"
	if mapped := MapError(err); mapped != nil {
		msg = mapped.Error()
	}
	msg = safeOneLine(msg)
	switch artifact {
	case ArtifactCode:
		return "// Error: " + msg
	case ArtifactCircuit, ArtifactPreview:
		return "<!-- Error: " + strings.ReplaceAll(msg, "--", "- -") + " -->"
	case ArtifactParts:
		return "category,name,mpn,qty,price_eur,supplier,url,specs\n"
	default:
		return "Error: " + msg
	}
}

func (s *Service) logFailure(slug string, err error, elapsed time.Duration) {
	if s.Logger == nil {
		return
	}
	mapped := MapError(err)
	fields := []zap.Field{
		zap.String("prompt", slug),
		zap.String("code", mapped.Code),
		zap.String("kind", mapped.Kind),
		zap.String("details", mapped.Details),
		zap.Duration("elapsed", elapsed),
	}
	if raw := captureRaw(s.Config, err); raw != nil {
		fields = append(fields, zap.ByteString("raw_response", raw))
	}
	s.Logger.Warn("generation failed", fields...)
}

func (s *Service) logDebug(msg string, fields ...zap.Field) {
	if s.Logger != nil {
		s.Logger.Debug(msg, fields...)
	}
}

func cleanParts(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
