package output

import (
	"fmt"
	"strings"

	"github.com/roboforge/roboforge/internal/core"
	"github.com/roboforge/roboforge/internal/core/engine"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) FormatParts(parts []core.Part) (string, error) {
	var sb strings.Builder
	sb.WriteString("| MPN | Manufacturer | Specs | Best offer |\n")
	sb.WriteString("|-----|--------------|-------|------------|\n")
	for _, p := range parts {
		writeRow(&sb, p.MPN, p.Manufacturer, specSummary(p, 3), sellerSummary(p))
	}
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatPartsList(items []core.PartsListItem) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Category | Name | MPN | Qty | Price (EUR) | Supplier |\n")
	sb.WriteString("|----------|------|-----|----:|------------:|----------|\n")
	for _, it := range items {
		supplier := it.Supplier
		if it.URL != "" {
			supplier = fmt.Sprintf("[%s](%s)", it.Supplier, it.URL)
		}
		writeRow(&sb, it.Category, it.Name, it.MPN, fmt.Sprint(it.Qty), fmt.Sprintf("%.2f", it.PriceEUR), supplier)
	}
	sb.WriteString(fmt.Sprintf("\n**Total**: %.2f EUR\n", core.PartsListTotal(items)))
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatBuilds(builds []core.BuildConfig) (string, error) {
	var sb strings.Builder
	sb.WriteString("| ID | Name | Parts |\n")
	sb.WriteString("|----|------|------:|\n")
	for _, b := range builds {
		writeRow(&sb, b.ID, b.Name, fmt.Sprint(len(b.Parts)))
	}
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatBuild(build *core.BuildConfig) (string, error) {
	if build == nil {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(build.Name)))
	for i, p := range build.Parts {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, escapeMarkdownCell(p.Label())))
	}
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatForge(result *engine.ForgeResult) (string, error) {
	if result == nil {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(result.Description)))
	sb.WriteString("| Artifact | Status | Notes |\n")
	sb.WriteString("|----------|--------|-------|\n")
	for _, a := range result.Artifacts {
		writeRow(&sb, string(a.Artifact), artifactStatus(a), artifactNotes(a))
	}
	if result.Image != nil {
		writeRow(&sb, "image", "ok", result.Image.URL)
	} else if result.ImageError != nil {
		writeRow(&sb, "image", "failed", result.ImageError.Error())
	}
	if len(result.PartsList) > 0 {
		parts, _ := f.FormatPartsList(result.PartsList)
		sb.WriteString("\n### Parts\n\n")
		sb.WriteString(parts)
	}
	return sb.String(), nil
}

func writeRow(sb *strings.Builder, cells ...string) {
	sb.WriteString("|")
	for _, c := range cells {
		sb.WriteString(" ")
		sb.WriteString(escapeMarkdownCell(c))
		sb.WriteString(" |")
	}
	sb.WriteString("\n")
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.ReplaceAll(value, "|", "\\|")
}
