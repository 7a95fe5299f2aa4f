package tool

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the statically computed tool catalogue: declarations plus the
// dependency relationships between tools.
type Manifest struct {
	Tools []ManifestEntry `yaml:"tools"`
}

// ManifestEntry declares one tool.
type ManifestEntry struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Parameters  map[string]any `yaml:"parameters"`
	Credentials []string       `yaml:"credentials,omitempty"`
	DependsOn   []string       `yaml:"depends_on,omitempty"`
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tool manifest %s: %w", path, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("tool manifest %s: %w", path, err)
	}
	return m, nil
}

// ParseManifest decodes manifest YAML and validates it.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks for empty and duplicate names and dangling dependencies.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Tools))
	for _, e := range m.Tools {
		if e.Name == "" {
			return errors.New("manifest entry without name")
		}
		if seen[e.Name] {
			return fmt.Errorf("duplicate manifest entry %q", e.Name)
		}
		seen[e.Name] = true
	}
	for _, e := range m.Tools {
		for _, d := range e.DependsOn {
			if !seen[d] {
				return fmt.Errorf("tool %q depends on undeclared tool %q", e.Name, d)
			}
		}
	}
	return nil
}

// Bind registers every entry that has an executor in executors as a
// FunctionTool carrying the manifest declaration, and records dependencies.
// It returns the names of entries left unbound.
func (m *Manifest) Bind(reg *StaticRegistry, executors map[string]Executor) ([]string, error) {
	var unbound []string
	for _, e := range m.Tools {
		fn, ok := executors[e.Name]
		if !ok {
			unbound = append(unbound, e.Name)
			continue
		}
		ft := NewFunctionTool(e.Name, e.Description, e.Parameters, fn).WithCredentials(e.Credentials...)
		if err := reg.Register(ft); err != nil {
			return unbound, err
		}
		if len(e.DependsOn) > 0 {
			reg.SetDependencies(e.Name, e.DependsOn...)
		}
	}
	return unbound, nil
}
