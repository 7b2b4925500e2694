package alert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Band maps a probability floor to a severity. A probability falls into the
// highest band whose Min it reaches.
type Band struct {
	Min      float64 `yaml:"min" json:"min"`
	Severity int     `yaml:"severity" json:"severity"`
}

// SeverityPolicy is the sole severity signal reviewers see, so the banding
// must stay deterministic: bands are kept sorted by Min descending and the
// lowest band must start at 0.
type SeverityPolicy struct {
	Bands []Band `yaml:"bands" json:"bands"`
}

type policyFile struct {
	Severity SeverityPolicy `yaml:"severity"`
}

// DefaultSeverityPolicy: >=0.8 -> 5, >=0.6 -> 4, >=0.4 -> 3, >=0.2 -> 2, else 1.
func DefaultSeverityPolicy() SeverityPolicy {
	return SeverityPolicy{Bands: []Band{
		{Min: 0.8, Severity: 5},
		{Min: 0.6, Severity: 4},
		{Min: 0.4, Severity: 3},
		{Min: 0.2, Severity: 2},
		{Min: 0.0, Severity: 1},
	}}
}

// LoadSeverityPolicy reads a YAML policy override. An empty path yields the
// default banding.
func LoadSeverityPolicy(path string) (SeverityPolicy, error) {
	if path == "" {
		return DefaultSeverityPolicy(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultSeverityPolicy(), err
	}

	var cfg policyFile
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return SeverityPolicy{}, err
	}
	policy := cfg.Severity
	if err := policy.validate(); err != nil {
		return SeverityPolicy{}, err
	}
	sort.Slice(policy.Bands, func(i, j int) bool {
		return policy.Bands[i].Min > policy.Bands[j].Min
	})
	return policy, nil
}

func (p SeverityPolicy) validate() error {
	if len(p.Bands) == 0 {
		return errors.New("no severity bands configured")
	}
	hasFloor := false
	for _, b := range p.Bands {
		if b.Min < 0 || b.Min > 1 {
			return fmt.Errorf("band min %v outside [0,1]", b.Min)
		}
		if b.Severity < 1 || b.Severity > 5 {
			return fmt.Errorf("band severity %d outside 1..5", b.Severity)
		}
		if b.Min == 0 {
			hasFloor = true
		}
	}
	if !hasFloor {
		return errors.New("severity bands must include a min 0 floor")
	}
	return nil
}

// Severity returns the severity for a probability.
func (p SeverityPolicy) Severity(probability float64) int {
	for _, b := range p.Bands {
		if probability >= b.Min {
			return b.Severity
		}
	}
	// validate() guarantees a zero floor, this is only reachable for
	// negative probabilities rejected upstream.
	return 1
}
