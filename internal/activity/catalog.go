package activity

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/problem-workshop/internal/types"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Catalog is the ordered set of activities offered by the workshop.
type Catalog struct {
	Activities []*Definition `yaml:"activities"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// DefaultCatalog returns the embedded catalog, parsed once.
func DefaultCatalog() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = ParseCatalog(catalogYAML)
	})
	return defaultCatalog, defaultErr
}

// ParseCatalog decodes and checks a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse activity catalog: %w", err)
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) check() error {
	if len(c.Activities) == 0 {
		return fmt.Errorf("activity catalog is empty")
	}
	ids := make(map[string]bool, len(c.Activities))
	for _, def := range c.Activities {
		if def.ID == "" {
			return fmt.Errorf("activity with title %q has no id", def.Title)
		}
		if ids[def.ID] {
			return fmt.Errorf("duplicate activity id %q", def.ID)
		}
		ids[def.ID] = true
		if len(def.Steps) == 0 {
			return fmt.Errorf("activity %q has no steps", def.ID)
		}

		fields := make(map[string]bool)
		for i, step := range def.Steps {
			for _, rule := range step.Fields {
				if rule.Name == "" {
					return fmt.Errorf("activity %q step %d has a field without a name", def.ID, i+1)
				}
				if fields[rule.Name] {
					return fmt.Errorf("activity %q declares field %q twice", def.ID, rule.Name)
				}
				fields[rule.Name] = true

				switch rule.Kind {
				case types.KindText, types.KindMarkers, types.KindList:
				case types.KindChoice:
					if len(rule.Options) == 0 {
						return fmt.Errorf("activity %q field %q has no options", def.ID, rule.Name)
					}
				default:
					return fmt.Errorf("activity %q field %q has unknown kind %q", def.ID, rule.Name, rule.Kind)
				}
			}
		}
	}
	return nil
}

// Get returns the activity with the given id.
func (c *Catalog) Get(id string) (*Definition, bool) {
	for _, def := range c.Activities {
		if def.ID == id {
			return def, true
		}
	}
	return nil, false
}

// First returns the first activity of the catalog.
func (c *Catalog) First() *Definition {
	return c.Activities[0]
}
