package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/roboforge/roboforge/internal/core"
	"github.com/roboforge/roboforge/internal/core/engine"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

func newTable(header table.Row) table.Writer {
	style := table.StyleRounded
	style.Format.Footer = text.FormatDefault
	t := table.NewWriter()
	t.SetStyle(style)
	t.AppendHeader(header)
	return t
}

// FormatParts renders search results.
func (f *TableFormatter) FormatParts(parts []core.Part) (string, error) {
	t := newTable(table.Row{"#", "MPN", "Manufacturer", "Specs", "Best offer"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 48},
	})
	for i, p := range parts {
		t.AppendRow(table.Row{i + 1, p.MPN, p.Manufacturer, specSummary(p, 3), sellerSummary(p)})
	}
	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d result(s)", len(parts))})
	return t.Render(), nil
}

// FormatPartsList renders a generated bill of materials with a total.
func (f *TableFormatter) FormatPartsList(items []core.PartsListItem) (string, error) {
	t := newTable(table.Row{"Category", "Name", "MPN", "Qty", "Price (EUR)", "Supplier"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	for _, it := range items {
		t.AppendRow(table.Row{it.Category, it.Name, it.MPN, it.Qty, fmt.Sprintf("%.2f", it.PriceEUR), it.Supplier})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", fmt.Sprintf("%.2f", core.PartsListTotal(items)), ""})
	return t.Render(), nil
}

// FormatBuilds renders the configuration list.
func (f *TableFormatter) FormatBuilds(builds []core.BuildConfig) (string, error) {
	t := newTable(table.Row{"ID", "Name", "Parts", "Updated"})
	for _, b := range builds {
		t.AppendRow(table.Row{b.ID, b.Name, len(b.Parts), b.UpdatedAt.Format("2006-01-02 15:04")})
	}
	return t.Render(), nil
}

// FormatBuild renders one configuration and its parts.
func (f *TableFormatter) FormatBuild(build *core.BuildConfig) (string, error) {
	if build == nil {
		return "", nil
	}
	t := newTable(table.Row{"#", "Part", "Qty", "Best offer"})
	t.SetTitle(fmt.Sprintf("%s (%s)", build.Name, build.ID))
	for i, p := range build.Parts {
		qty := p.Quantity
		if qty == 0 {
			qty = 1
		}
		t.AppendRow(table.Row{i, p.Label(), qty, sellerSummary(p)})
	}
	return t.Render(), nil
}

// FormatForge renders the per-artifact status of a forge run.
func (f *TableFormatter) FormatForge(result *engine.ForgeResult) (string, error) {
	if result == nil {
		return "", nil
	}
	t := newTable(table.Row{"Artifact", "Status", "Notes"})
	t.SetTitle(result.Description)
	for _, a := range result.Artifacts {
		t.AppendRow(table.Row{string(a.Artifact), artifactStatus(a), artifactNotes(a)})
	}
	switch {
	case result.Image != nil:
		t.AppendRow(table.Row{"image", "ok", result.Image.URL})
	case result.ImageError != nil:
		t.AppendRow(table.Row{"image", "failed", result.ImageError.Error()})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d failed", result.Failed()), result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond).String()})

	rendered := t.Render()
	if len(result.PartsList) > 0 {
		parts, _ := f.FormatPartsList(result.PartsList)
		rendered += "\n\n" + strings.TrimRight(parts, "\n")
	}
	return rendered, nil
}
