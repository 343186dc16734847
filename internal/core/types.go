package core

import (
	"strconv"
	"time"
)

// Spec is a single attribute reported for a part.
type Spec struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Seller is a distributor offer for a part.
type Seller struct {
	Name     string  `json:"name"`
	URL      string  `json:"url,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Currency string  `json:"currency,omitempty"`
}

// Part is a component a user can add to a build configuration.
type Part struct {
	MPN          string   `json:"mpn"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Name         string   `json:"name,omitempty"`
	Category     string   `json:"category,omitempty"`
	Image        string   `json:"image,omitempty"`
	Quantity     int      `json:"qty,omitempty"`
	Specs        []Spec   `json:"specs,omitempty"`
	Sellers      []Seller `json:"sellers,omitempty"`
}

// Label is the short human name for a part: "Manufacturer MPN" or the name.
func (p Part) Label() string {
	switch {
	case p.Manufacturer != "" && p.MPN != "":
		return p.Manufacturer + " " + p.MPN
	case p.MPN != "":
		return p.MPN
	default:
		return p.Name
	}
}

// BuildConfig is a named, user-curated list of parts.
type BuildConfig struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PartLabels returns Label() for every part, in order.
func (b *BuildConfig) PartLabels() []string {
	if b == nil {
		return nil
	}
	labels := make([]string, 0, len(b.Parts))
	for _, p := range b.Parts {
		if l := p.Label(); l != "" {
			labels = append(labels, l)
		}
	}
	return labels
}

// DefaultBuildName names the configuration created on first use.
const DefaultBuildName = "My Robot"

// NextBuildName names a new configuration given how many already exist.
func NextBuildName(existing int) string {
	return "Configuration " + strconv.Itoa(existing+1)
}
