package descriptor

import (
	"fmt"
	"strings"
)

// Validate returns a description of every structural problem with the service, or nil if the service can be planned.
func (s *Service) Validate() []string {
	var problems []string
	report := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }
	if s.Lifetime < Unspecified || s.Lifetime > Transient {
		report("unknown lifetime %d", int(s.Lifetime))
	}
	if s.Directives.FanOut < All || s.Directives.FanOut > Exclusionary {
		report("unknown fan-out mode %d", int(s.Directives.FanOut))
	}
	if s.Directives.Sharing < Separate || s.Directives.Sharing > Shared {
		report("unknown instance sharing %d", int(s.Directives.Sharing))
	}
	if s.Base == s.Type {
		report("type can not be its own base")
	}
	for _, skip := range s.Directives.Skip {
		if strings.TrimSpace(string(skip)) == "" {
			report("empty contract in skip list")
		}
	}
	if g := s.Directives.Guard; g != nil {
		if len(g.Conditions) == 0 {
			report("guard has no conditions")
		}
		for _, cond := range g.Conditions {
			switch cond.Kind {
			case EnvironmentEquals, EnvironmentExcludes:
				if len(cond.Environments) == 0 {
					report("%s condition has no environment names", cond.Kind)
				}
				for _, env := range cond.Environments {
					if strings.TrimSpace(env) == "" {
						report("%s condition has an empty environment name", cond.Kind)
						break
					}
				}
			case ConfigKeyEquals, ConfigKeyNotEquals:
				if strings.TrimSpace(cond.Key) == "" {
					report("%s condition has no configuration key", cond.Kind)
				}
			default:
				report("unknown condition kind %d", int(cond.Kind))
			}
		}
	}
	fields := map[string]bool{}
	for _, dep := range s.Dependencies {
		if strings.TrimSpace(string(dep.Target)) == "" {
			report("dependency %q has no target", dep.Field)
			continue
		}
		if dep.Field != "" {
			if fields[dep.Field] {
				report("field %q is bound more than once", dep.Field)
			}
			fields[dep.Field] = true
		}
		switch dep.Origin {
		case ConfigurationBinding:
			if dep.Field == "" {
				report("configuration binding for %s has no field", dep.Target)
			}
		case FieldMarker:
			if dep.Field == "" {
				report("field dependency on %s has no field", dep.Target)
			}
			if dep.Config != nil {
				report("field %q has configuration options but is not a configuration binding", dep.Field)
			}
		case BulkDeclaration:
			if dep.Config != nil {
				report("bulk dependency on %s has configuration options", dep.Target)
			}
		default:
			report("dependency on %s has unknown origin %d", dep.Target, int(dep.Origin))
		}
	}
	return problems
}
