package ailink

import "time"

// Config defines vendor configuration for AILink.
//
// This is self-contained so the subtree can be decoded straight from the
// application config.
type Config struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	DefaultModel   string        `mapstructure:"default_model"`
	ImageModel     string        `mapstructure:"image_model"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`

	// MinInterval is the minimum gap between two dispatch starts, process-wide.
	MinInterval time.Duration `mapstructure:"min_interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`

	// PromptsDir overrides built-in prompts by slug.
	PromptsDir string `mapstructure:"prompts_dir"`

	// Debug controls optional diagnostics like raw payload capture.
	Debug DebugConfig `mapstructure:"debug"`
}

type DebugConfig struct {
	CaptureRawEnabled  bool   `mapstructure:"capture_raw_enabled"`
	CaptureRawMaxBytes int    `mapstructure:"capture_raw_max_bytes"`
	TraceFile          string `mapstructure:"trace_file"`
}

// Defaults for the vendor subtree.
const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o"
	DefaultImageModel  = "dall-e-3"
	DefaultMinInterval = time.Second
	DefaultMaxAttempts = 3
)
