package command

import (
	"fmt"
	"sort"
	"strings"

	"opsbot/internal/config"
)

type Registry interface {
	Add(spec Spec) error
	List() []Info
	Get(name string) (Spec, bool)
}

type SpecRegistry struct {
	cfg   *config.Config
	specs map[string]Spec
}

// NewRegistry returns a registry that already holds the built-in help command.
func NewRegistry(cfg *config.Config) *SpecRegistry {
	r := &SpecRegistry{cfg: cfg, specs: map[string]Spec{}}
	r.specs[helpCommand] = r.helpSpec()
	return r
}

func (r *SpecRegistry) Add(spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("command name required")
	}
	if strings.ContainsAny(spec.Name, " \t\n") {
		return fmt.Errorf("command name %q must be a single word", spec.Name)
	}
	if spec.Handler == nil {
		return fmt.Errorf("command %s has no handler", spec.Name)
	}
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("command %s already registered", spec.Name)
	}
	if !r.allowedBySafety(spec) {
		return nil
	}
	r.specs[spec.Name] = spec
	return nil
}

func (r *SpecRegistry) List() []Info {
	infos := make([]Info, 0, len(r.specs))
	for _, spec := range r.Specs() {
		infos = append(infos, Info{Name: spec.Name, Usage: usage(spec), Description: spec.Description, Toolset: spec.ToolsetID})
	}
	return infos
}

func (r *SpecRegistry) Get(name string) (Spec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

func (r *SpecRegistry) Specs() []Spec {
	specs := make([]Spec, 0, len(r.specs))
	for _, spec := range r.specs {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool {
		return specs[i].Name < specs[j].Name
	})
	return specs
}

func (r *SpecRegistry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *SpecRegistry) allowedBySafety(spec Spec) bool {
	if r.cfg == nil || !r.cfg.ReadOnly {
		return true
	}
	return spec.Safety == SafetyReadOnly || spec.Safety == ""
}

func usage(spec Spec) string {
	if spec.Usage != "" {
		return spec.Usage
	}
	return spec.Name
}
