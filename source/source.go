// Package source loads the parsed feature set the engine consumes. Feature
// syntax parsing belongs to an external collaborator; this loader reads that
// collaborator's output, a YAML manifest of features.
package source

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/stepflow-dev/stepflow/types"
)

// Manifest is the on-disk form of a parsed feature set.
type Manifest struct {
	Features []*types.Feature `yaml:"features"`
}

// Loader reads feature manifests.
type Loader struct {
	log log.Logger
}

// NewLoader creates a feature loader.
func NewLoader(logger log.Logger) *Loader {
	if logger == nil {
		logger = log.New()
	}
	return &Loader{log: logger.New("component", "source")}
}

// Load reads and validates a feature manifest. Scenario IDs are assigned
// when the manifest omits them, and feature back-references are populated.
func (l *Loader) Load(path string) ([]*types.Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature manifest %s: %w", path, err)
	}
	features, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load feature manifest %s: %w", path, err)
	}
	l.log.Info("Loaded features", "path", path, "features", len(features))
	return features, nil
}

// Parse decodes manifest bytes into a validated feature set.
func (l *Loader) Parse(data []byte) ([]*types.Feature, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(m.Features) == 0 {
		return nil, fmt.Errorf("manifest contains no features")
	}

	seen := make(map[string]bool)
	for fi, f := range m.Features {
		if f.Name == "" {
			return nil, fmt.Errorf("feature %d has no name", fi)
		}
		if f.URI == "" {
			f.URI = fmt.Sprintf("feature:%s", f.Name)
		}
		for si, s := range f.Scenarios {
			if s.Name == "" {
				return nil, fmt.Errorf("feature %q: scenario %d has no name", f.Name, si)
			}
			if s.Type == "" {
				s.Type = types.ScenarioTypeStandard
			}
			if s.Type == types.ScenarioTypeOutline && len(s.Examples) == 0 {
				return nil, fmt.Errorf("feature %q: outline %q has no example tables", f.Name, s.Name)
			}
			if s.ID == "" {
				s.ID = fmt.Sprintf("%s/%d", f.URI, si)
			}
			if seen[s.ID] {
				return nil, fmt.Errorf("duplicate scenario id %q", s.ID)
			}
			seen[s.ID] = true
			s.FeatureName = f.Name
			s.FeatureURI = f.URI
		}
	}
	return m.Features, nil
}
