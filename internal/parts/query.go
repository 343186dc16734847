package parts

import (
	"encoding/json"
	"strings"

	"github.com/roboforge/roboforge/internal/core"
)

const searchQuery = `query SearchParts($q: String!, $limit: Int!) {
  supSearch(q: $q, limit: $limit) {
    results {
      part {
        mpn
        name
        manufacturer { name }
        category { name }
        bestImage { url }
        specs {
          attribute { name }
          displayValue
        }
        sellers(offeringFilter: { inStockOnly: false }, limit: 3) {
          company { name }
          offers(limit: 1) {
            clickUrl
            prices { price currency }
          }
        }
      }
    }
  }
}`

type searchData struct {
	SupSearch *struct {
		Results []struct {
			Part *nexarPart `json:"part"`
		} `json:"results"`
	} `json:"supSearch"`
}

type nexarPart struct {
	MPN          string `json:"mpn"`
	Name         string `json:"name"`
	Manufacturer *named `json:"manufacturer"`
	Category     *named `json:"category"`
	BestImage    *struct {
		URL string `json:"url"`
	} `json:"bestImage"`
	Specs []struct {
		Attribute    *named `json:"attribute"`
		DisplayValue string `json:"displayValue"`
	} `json:"specs"`
	Sellers []struct {
		Company *named `json:"company"`
		Offers  []struct {
			ClickURL string `json:"clickUrl"`
			Prices   []struct {
				Price    float64 `json:"price"`
				Currency string  `json:"currency"`
			} `json:"prices"`
		} `json:"offers"`
	} `json:"sellers"`
}

type named struct {
	Name string `json:"name"`
}

func (n *named) name() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Name)
}

// MapParts converts supSearch data into parts: at most six specs and three
// sellers each, first offer and first price per seller.
func MapParts(data json.RawMessage) ([]core.Part, error) {
	parts := []core.Part{}
	if isNull(data) {
		return parts, nil
	}

	var decoded searchData
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, err
	}
	if decoded.SupSearch == nil {
		return parts, nil
	}

	for _, r := range decoded.SupSearch.Results {
		if r.Part == nil {
			continue
		}
		np := r.Part
		p := core.Part{
			MPN:          strings.TrimSpace(np.MPN),
			Name:         strings.TrimSpace(np.Name),
			Manufacturer: np.Manufacturer.name(),
			Category:     np.Category.name(),
		}
		if np.BestImage != nil {
			p.Image = np.BestImage.URL
		}
		for i, s := range np.Specs {
			if i == maxSpecs {
				break
			}
			p.Specs = append(p.Specs, core.Spec{Name: s.Attribute.name(), Value: s.DisplayValue})
		}
		for i, s := range np.Sellers {
			if i == maxSellers {
				break
			}
			seller := core.Seller{Name: s.Company.name()}
			if len(s.Offers) > 0 {
				seller.URL = s.Offers[0].ClickURL
				if len(s.Offers[0].Prices) > 0 {
					seller.Price = s.Offers[0].Prices[0].Price
					seller.Currency = s.Offers[0].Prices[0].Currency
				}
			}
			p.Sellers = append(p.Sellers, seller)
		}
		parts = append(parts, p)
	}
	return parts, nil
}
