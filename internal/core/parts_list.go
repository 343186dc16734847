package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// PartsListColumns is the CSV header the parts-list prompt produces.
var PartsListColumns = []string{"category", "name", "mpn", "qty", "price_eur", "supplier", "url", "specs"}

// PartsListItem is one row of a generated parts list.
type PartsListItem struct {
	Category string  `json:"category"`
	Name     string  `json:"name"`
	MPN      string  `json:"mpn"`
	Qty      int     `json:"qty"`
	PriceEUR float64 `json:"price_eur"`
	Supplier string  `json:"supplier"`
	URL      string  `json:"url"`
	Specs    string  `json:"specs"`
}

// LineTotal is Qty * PriceEUR.
func (i PartsListItem) LineTotal() float64 {
	return float64(i.Qty) * i.PriceEUR
}

// Part converts the row into a Part that can be added to a build.
func (i PartsListItem) Part() Part {
	p := Part{
		MPN:      i.MPN,
		Name:     i.Name,
		Category: i.Category,
		Quantity: i.Qty,
	}
	if i.Supplier != "" || i.URL != "" {
		p.Sellers = []Seller{{Name: i.Supplier, URL: i.URL, Price: i.PriceEUR, Currency: "EUR"}}
	}
	if i.Specs != "" {
		p.Specs = []Spec{{Name: "summary", Value: i.Specs}}
	}
	return p
}

// ParsePartsList reads the CSV produced by the parts-list prompt. A header row
// is optional. Rows with fewer than three columns are skipped; more than eight
// columns are folded into specs, since models often leave commas in free text.
func ParsePartsList(r io.Reader) ([]PartsListItem, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var items []PartsListItem
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return items, fmt.Errorf("parts list line %d: %w", line, err)
		}
		if len(record) < 3 || isHeader(record) {
			continue
		}
		items = append(items, parseRow(record))
	}
	return items, nil
}

// ParsePartsListString is ParsePartsList over a string.
func ParsePartsListString(s string) ([]PartsListItem, error) {
	return ParsePartsList(strings.NewReader(s))
}

// PartsListTotal sums every line total.
func PartsListTotal(items []PartsListItem) float64 {
	var total float64
	for _, it := range items {
		total += it.LineTotal()
	}
	return total
}

func isHeader(record []string) bool {
	return strings.EqualFold(strings.TrimSpace(record[0]), "category") &&
		strings.EqualFold(strings.TrimSpace(record[1]), "name")
}

func parseRow(record []string) PartsListItem {
	field := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}
	item := PartsListItem{
		Category: field(0),
		Name:     field(1),
		MPN:      field(2),
		Supplier: field(5),
		URL:      field(6),
		Specs:    field(7),
	}
	if len(record) > 8 {
		item.Specs = strings.TrimSpace(strings.Join(record[7:], ","))
	}
	item.Qty = 1
	if q, err := strconv.Atoi(field(3)); err == nil && q > 0 {
		item.Qty = q
	}
	price := strings.TrimPrefix(strings.ReplaceAll(field(4), ",", "."), "€")
	if p, err := strconv.ParseFloat(strings.TrimSpace(price), 64); err == nil && p >= 0 {
		item.PriceEUR = p
	}
	return item
}
