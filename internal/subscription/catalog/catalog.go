// Package catalog provides the plan catalog the state machine prices plans from.
package catalog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"subsnap/internal/subscription/models"
)

// Default mirrors the list prices the product has always shipped with.
func Default() models.Catalog {
	return models.Catalog{
		"free":       {ID: "free", Name: "Free", Tier: 0, ListPrice: decimal.Zero, Interval: models.IntervalMonthly},
		"basic":      {ID: "basic", Name: "Basic", Tier: 1, ListPrice: decimal.NewFromInt(29), Interval: models.IntervalMonthly},
		"pro":        {ID: "pro", Name: "Pro", Tier: 2, ListPrice: decimal.NewFromInt(99), Interval: models.IntervalMonthly},
		"enterprise": {ID: "enterprise", Name: "Enterprise", Tier: 3, ListPrice: decimal.NewFromInt(299), Interval: models.IntervalMonthly},
	}
}

type fileCatalog struct {
	Plans []filePlan `yaml:"plans"`
}

type filePlan struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Tier     int    `yaml:"tier"`
	Price    string `yaml:"price"`
	Interval string `yaml:"interval"`
}

// Parse reads a YAML catalog:
//
//	plans:
//	  - id: pro
//	    name: Pro
//	    tier: 2
//	    price: "99.00"
//	    interval: monthly
func Parse(r io.Reader) (models.Catalog, error) {
	var file fileCatalog
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode plan catalog: %w", err)
	}
	if len(file.Plans) == 0 {
		return nil, fmt.Errorf("plan catalog is empty")
	}

	catalog := make(models.Catalog, len(file.Plans))
	for i, p := range file.Plans {
		id := strings.ToLower(strings.TrimSpace(p.ID))
		if id == "" {
			return nil, fmt.Errorf("plan %d: id is required", i)
		}
		if _, dup := catalog[id]; dup {
			return nil, fmt.Errorf("plan %q: duplicate id", id)
		}

		price := decimal.Zero
		if strings.TrimSpace(p.Price) != "" {
			parsed, err := decimal.NewFromString(strings.TrimSpace(p.Price))
			if err != nil {
				return nil, fmt.Errorf("plan %q: parse price: %w", id, err)
			}
			if parsed.IsNegative() {
				return nil, fmt.Errorf("plan %q: price must not be negative", id)
			}
			price = parsed
		}

		interval := models.BillingInterval(strings.ToLower(strings.TrimSpace(p.Interval)))
		switch interval {
		case "":
			interval = models.IntervalMonthly
		case models.IntervalMonthly, models.IntervalAnnual:
		default:
			return nil, fmt.Errorf("plan %q: unknown interval %q", id, p.Interval)
		}

		name := p.Name
		if name == "" {
			name = id
		}
		catalog[id] = models.Plan{ID: id, Name: name, Tier: p.Tier, ListPrice: price, Interval: interval}
	}
	return catalog, nil
}

// Load returns the catalog at path, or Default when path is empty.
func Load(path string) (models.Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}
