package output

import (
	"fmt"
	"strings"

	"github.com/roboforge/roboforge/internal/core"
	"github.com/roboforge/roboforge/internal/core/engine"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders CLI results.
type Formatter interface {
	FormatParts(parts []core.Part) (string, error)
	FormatPartsList(items []core.PartsListItem) (string, error)
	FormatBuilds(builds []core.BuildConfig) (string, error)
	FormatBuild(build *core.BuildConfig) (string, error)
	FormatForge(result *engine.ForgeResult) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

func sellerSummary(p core.Part) string {
	if len(p.Sellers) == 0 {
		return ""
	}
	s := p.Sellers[0]
	if s.Price > 0 {
		return fmt.Sprintf("%s %s", s.Name, formatPrice(s.Price, s.Currency))
	}
	return s.Name
}

func specSummary(p core.Part, limit int) string {
	out := make([]string, 0, len(p.Specs))
	for i, s := range p.Specs {
		if i == limit {
			break
		}
		if s.Name == "" {
			out = append(out, s.Value)
			continue
		}
		out = append(out, s.Name+": "+s.Value)
	}
	return strings.Join(out, "; ")
}

func formatPrice(price float64, currency string) string {
	if currency == "" {
		return fmt.Sprintf("%.2f", price)
	}
	return fmt.Sprintf("%.2f %s", price, currency)
}

func artifactStatus(a engine.ArtifactResult) string {
	switch {
	case a.Error != nil:
		return "failed"
	case a.Cached:
		return "cached"
	default:
		return "ok"
	}
}

func artifactNotes(a engine.ArtifactResult) string {
	if a.Error != nil {
		return a.Error.Error()
	}
	lines := strings.Count(a.Content, "\n") + 1
	return fmt.Sprintf("%d lines, %d attempt(s)", lines, a.Attempts)
}
