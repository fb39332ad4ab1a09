package quality

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// SuiteSpec is the YAML form of a suite:
//
//	name: post_load
//	expectations:
//	  - kind: row_count
//	    relation: fact_subscription_daily
//	    min: 1
//	  - kind: no_nulls
//	    relation: fact_subscription_daily
//	    columns: [date_key, account_id, plan_id]
//	  - kind: freshness
//	    relation: fact_subscription_daily
//	    column: loaded_at
//	    max_age: 48h
type SuiteSpec struct {
	Name         string            `yaml:"name"`
	Expectations []ExpectationSpec `yaml:"expectations"`
}

// ExpectationSpec declares one expectation. Which fields apply depends on Kind.
type ExpectationSpec struct {
	Kind        string   `yaml:"kind"`
	Relation    string   `yaml:"relation"`
	Columns     []string `yaml:"columns"`
	Column      string   `yaml:"column"`
	Min         *int64   `yaml:"min"`
	Max         *int64   `yaml:"max"`
	MaxRate     float64  `yaml:"max_rate"`
	RefRelation string   `yaml:"ref_relation"`
	RefColumns  []string `yaml:"ref_columns"`
	MaxAge      string   `yaml:"max_age"`
	Allowed     []string `yaml:"allowed"`
	Lower       string   `yaml:"lower"`
	Upper       string   `yaml:"upper"`
	Earlier     string   `yaml:"earlier"`
	Later       string   `yaml:"later"`
}

// LoadSuiteSpec decodes a YAML suite and checks every expectation is well formed.
func LoadSuiteSpec(r io.Reader) (SuiteSpec, error) {
	var spec SuiteSpec
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return SuiteSpec{}, fmt.Errorf("decode quality suite: %w", err)
	}
	if strings.TrimSpace(spec.Name) == "" {
		return SuiteSpec{}, fmt.Errorf("quality suite name is required")
	}
	if len(spec.Expectations) == 0 {
		return SuiteSpec{}, fmt.Errorf("quality suite %s declares no expectations", spec.Name)
	}
	for i, e := range spec.Expectations {
		if err := e.validate(); err != nil {
			return SuiteSpec{}, fmt.Errorf("expectation %d (%s): %w", i, e.Kind, err)
		}
	}
	return spec, nil
}

// LoadSuiteFile reads a YAML suite from path.
func LoadSuiteFile(path string) (SuiteSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return SuiteSpec{}, fmt.Errorf("open quality suite: %w", err)
	}
	defer f.Close()
	return LoadSuiteSpec(f)
}

func (e ExpectationSpec) validate() error {
	if strings.TrimSpace(e.Relation) == "" {
		return fmt.Errorf("relation is required")
	}
	switch e.Kind {
	case KindRowCount:
		if e.Min == nil {
			return fmt.Errorf("min is required")
		}
	case KindNoNulls, KindUnique:
		if len(e.Columns) == 0 {
			return errNoColumns
		}
	case KindNullRate:
		if len(e.Columns) == 0 {
			return errNoColumns
		}
		if e.MaxRate < 0 || e.MaxRate > 1 {
			return fmt.Errorf("max_rate must be within 0..1")
		}
	case KindReferentialIntegrity:
		if len(e.Columns) == 0 || len(e.Columns) != len(e.RefColumns) || e.RefRelation == "" {
			return fmt.Errorf("columns, ref_relation and matching ref_columns are required")
		}
	case KindFreshness:
		if e.Column == "" {
			return fmt.Errorf("column is required")
		}
		if _, err := time.ParseDuration(e.MaxAge); err != nil {
			return fmt.Errorf("parse max_age: %w", err)
		}
	case KindValuesInSet:
		if e.Column == "" || len(e.Allowed) == 0 {
			return fmt.Errorf("column and allowed are required")
		}
	case KindValueRange:
		if e.Column == "" {
			return fmt.Errorf("column is required")
		}
		if _, err := optionalDecimal(e.Lower); err != nil {
			return fmt.Errorf("parse lower: %w", err)
		}
		if _, err := optionalDecimal(e.Upper); err != nil {
			return fmt.Errorf("parse upper: %w", err)
		}
	case KindNotBefore:
		if e.Earlier == "" || e.Later == "" {
			return fmt.Errorf("earlier and later are required")
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}

func optionalDecimal(s string) (*decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Build turns the suite definition into a runnable Suite against source. Specs returned by
// LoadSuiteSpec are already validated.
func (spec SuiteSpec) Build(source Source, opts ...Option) *Suite {
	s := New(spec.Name, source, opts...)
	spec.AddTo(s)
	return s
}

// AddTo appends the definition's expectations to an existing suite.
func (spec SuiteSpec) AddTo(s *Suite) {
	for _, e := range spec.Expectations {
		if err := e.validate(); err != nil {
			s.add(invalid{k: e.Kind, rel: e.Relation, err: err})
			continue
		}
		switch e.Kind {
		case KindRowCount:
			if e.Max != nil {
				s.ExpectRowCountBetween(e.Relation, *e.Min, *e.Max)
			} else {
				s.ExpectRowCount(e.Relation, *e.Min)
			}
		case KindNoNulls:
			s.ExpectNoNulls(e.Relation, e.Columns...)
		case KindNullRate:
			s.ExpectNullRate(e.Relation, e.MaxRate, e.Columns...)
		case KindUnique:
			s.ExpectUnique(e.Relation, e.Columns...)
		case KindReferentialIntegrity:
			s.ExpectReferentialIntegrity(e.Relation, e.Columns, e.RefRelation, e.RefColumns)
		case KindFreshness:
			maxAge, _ := time.ParseDuration(e.MaxAge)
			s.ExpectFreshness(e.Relation, e.Column, maxAge)
		case KindValuesInSet:
			s.ExpectValuesInSet(e.Relation, e.Column, e.Allowed...)
		case KindValueRange:
			lower, _ := optionalDecimal(e.Lower)
			upper, _ := optionalDecimal(e.Upper)
			s.ExpectValueRange(e.Relation, e.Column, lower, upper)
		case KindNotBefore:
			s.ExpectNotBefore(e.Relation, e.Earlier, e.Later)
		}
	}
}
