package prompt

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed prompts/*.md
var defaultPromptsFS embed.FS

// Slugs of the built-in prompts.
const (
	SlugArduinoCode = "arduino-code"
	SlugPartsList   = "parts-list"
	SlugCircuitSVG  = "circuit-svg"
	SlugModel3D     = "model-3d"
	SlugPreviewSVG  = "preview-svg"
	SlugWebSearch   = "web-search"
	SlugCodegen     = "codegen-simple"
	SlugHealth      = "health-check"
)

// LoadDefaults loads the embedded prompt set.
func LoadDefaults() ([]*Prompt, error) {
	entries, err := defaultPromptsFS.ReadDir("prompts")
	if err != nil {
		return nil, fmt.Errorf("read embedded prompts: %w", err)
	}
	results := make([]*Prompt, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := defaultPromptsFS.ReadFile("prompts/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read embedded prompt %s: %w", entry.Name(), err)
		}
		prompt, err := Load(entry.Name(), data)
		if err != nil {
			return nil, err
		}
		results = append(results, prompt)
	}
	return results, nil
}

// DefaultRegistry builds a registry from embedded prompts.
func DefaultRegistry() (*InMemoryRegistry, error) {
	prompts, err := LoadDefaults()
	if err != nil {
		return nil, err
	}
	return NewRegistry(prompts)
}

// RegistryWithOverrides loads the embedded prompts and replaces any whose slug
// also appears in dir. A blank dir yields the defaults.
func RegistryWithOverrides(dir string) (*InMemoryRegistry, error) {
	defaults, err := LoadDefaults()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dir) == "" {
		return NewRegistry(defaults)
	}
	overrides, err := LoadFromDir(dir)
	if err != nil {
		return nil, err
	}

	bySlug := make(map[string]*Prompt, len(defaults)+len(overrides))
	order := make([]string, 0, len(defaults)+len(overrides))
	for _, p := range append(defaults, overrides...) {
		if _, ok := bySlug[p.Config.Slug]; !ok {
			order = append(order, p.Config.Slug)
		}
		bySlug[p.Config.Slug] = p
	}
	merged := make([]*Prompt, 0, len(order))
	for _, slug := range order {
		merged = append(merged, bySlug[slug])
	}
	return NewRegistry(merged)
}
