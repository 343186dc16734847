package prompt

// Config describes a prompt definition loaded from YAML frontmatter.
type Config struct {
	Slug           string    `yaml:"slug" json:"slug"`
	Name           string    `yaml:"name,omitempty" json:"name,omitempty"`
	Description    string    `yaml:"description,omitempty" json:"description,omitempty"`
	Version        string    `yaml:"version,omitempty" json:"version,omitempty"`
	Updated        string    `yaml:"updated,omitempty" json:"updated,omitempty"`
	Input          InputSpec `yaml:"input,omitempty" json:"input,omitempty"`
	SystemTemplate string    `yaml:"system_template,omitempty" json:"system_template,omitempty"`
	UserTemplate   string    `yaml:"user_template,omitempty" json:"user_template,omitempty"`
	Output         Output    `yaml:"output,omitempty" json:"output,omitempty"`
	Sampling       Sampling  `yaml:"sampling,omitempty" json:"sampling,omitempty"`
}

// InputSpec defines prompt input requirements.
type InputSpec struct {
	RequiredVariables []string `yaml:"required_variables,omitempty" json:"required_variables,omitempty"`
	OptionalVariables []string `yaml:"optional_variables,omitempty" json:"optional_variables,omitempty"`
	AcceptsImages     bool     `yaml:"accepts_images,omitempty" json:"accepts_images,omitempty"`
}

// Output describes the artifact a prompt produces.
type Output struct {
	// Format is one of text, csv, svg, stl, ino.
	Format    string `yaml:"format,omitempty" json:"format,omitempty"`
	Extension string `yaml:"extension,omitempty" json:"extension,omitempty"`
	MediaType string `yaml:"media_type,omitempty" json:"media_type,omitempty"`
}

// Sampling carries per-prompt generation limits.
type Sampling struct {
	Model       string   `yaml:"model,omitempty" json:"model,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
}

// Prompt wraps a validated prompt configuration with its source.
type Prompt struct {
	Config Config
	Source string
}

// Slug returns the prompt identifier.
func (p *Prompt) Slug() string {
	if p == nil {
		return ""
	}
	return p.Config.Slug
}
