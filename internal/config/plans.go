package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conthop/backend/internal/app/domain/plan"
)

type planFile struct {
	Plans []plan.Plan `yaml:"plans"`
}

// DefaultPlans is the catalog used when no plan file exists.
func DefaultPlans() []plan.Plan {
	return []plan.Plan{
		{Code: "daily", Name: "Daily Savings"},
		{Code: "weekly", Name: "Weekly Savings"},
		{Code: "monthly", Name: "Monthly Savings"},
	}
}

// LoadPlans reads the plan catalog from path. A missing file yields the
// default catalog.
func LoadPlans(path string) ([]plan.Plan, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultPlans(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plans config: %w", err)
	}
	return ParsePlans(data)
}

// ParsePlans decodes and validates a YAML plan catalog.
func ParsePlans(data []byte) ([]plan.Plan, error) {
	var f planFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse plans config: %w", err)
	}
	if len(f.Plans) == 0 {
		return nil, fmt.Errorf("plans config lists no plans")
	}
	seen := make(map[string]bool, len(f.Plans))
	for i := range f.Plans {
		p := &f.Plans[i]
		p.Code = strings.ToLower(strings.TrimSpace(p.Code))
		p.Name = strings.TrimSpace(p.Name)
		if p.Code == "" {
			return nil, fmt.Errorf("plan %d: code is required", i)
		}
		if seen[p.Code] {
			return nil, fmt.Errorf("plan %s: duplicate code", p.Code)
		}
		seen[p.Code] = true
		if p.Name == "" {
			p.Name = p.Code
		}
	}
	return f.Plans, nil
}
