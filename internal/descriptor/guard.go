package descriptor

import (
	"fmt"
	"strings"
)

// ConditionKind is the kind of a leaf predicate in a [Guard].
type ConditionKind int

const (
	// EnvironmentEquals is true if the environment is any of the listed names.
	EnvironmentEquals ConditionKind = iota
	// EnvironmentExcludes is true if the environment is none of the listed names.
	EnvironmentExcludes
	// ConfigKeyEquals is true if the configuration key has the value.
	ConfigKeyEquals
	// ConfigKeyNotEquals is true if the configuration key does not have the value.
	ConfigKeyNotEquals
)

var conditionNames = []string{"env", "not-env", "config-equals", "config-not-equals"}

func (k ConditionKind) String() string { return enumString(conditionNames, int(k)) }

func (k ConditionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ConditionKind) UnmarshalText(text []byte) error {
	v, err := enumParse("condition", conditionNames, string(text))
	*k = ConditionKind(v)
	return err
}

// Condition is a leaf predicate of a [Guard].
type Condition struct {
	Kind ConditionKind `yaml:"kind" json:"kind"`
	// Environments are OR'd together for the environment kinds.
	Environments []string `yaml:"environments,omitempty" json:"environments,omitempty"`
	Key          string   `yaml:"key,omitempty" json:"key,omitempty"`
	Value        string   `yaml:"value,omitempty" json:"value,omitempty"`
}

// IsEnvironment returns true for the environment kinds.
func (c Condition) IsEnvironment() bool {
	return c.Kind == EnvironmentEquals || c.Kind == EnvironmentExcludes
}

func (c Condition) String() string {
	switch c.Kind {
	case EnvironmentEquals, EnvironmentExcludes:
		quoted := make([]string, len(c.Environments))
		for i, env := range c.Environments {
			quoted[i] = fmt.Sprintf("%q", env)
		}
		if len(quoted) == 1 {
			if c.Kind == EnvironmentEquals {
				return "env == " + quoted[0]
			}
			return "env != " + quoted[0]
		}
		op := "in"
		if c.Kind == EnvironmentExcludes {
			op = "not in"
		}
		return fmt.Sprintf("env %s (%s)", op, strings.Join(quoted, ", "))
	case ConfigKeyEquals:
		return fmt.Sprintf("config[%q] == %q", c.Key, c.Value)
	case ConfigKeyNotEquals:
		return fmt.Sprintf("config[%q] != %q", c.Key, c.Value)
	default:
		return "invalid"
	}
}

// Evaluate the condition against an environment.
func (c Condition) Evaluate(env Environment) bool {
	switch c.Kind {
	case EnvironmentEquals:
		return env.matches(c.Environments)
	case EnvironmentExcludes:
		return !env.matches(c.Environments)
	case ConfigKeyEquals:
		return env.Config[c.Key] == c.Value
	case ConfigKeyNotEquals:
		return env.Config[c.Key] != c.Value
	default:
		return false
	}
}

// Guard gates a registration on the AND of its conditions.
//
// Guards on different services targeting the same contract are independent: no exclusivity is enforced.
type Guard struct {
	Conditions []Condition `yaml:"conditions" json:"conditions"`
}

// String renders the canonical guard expression.
func (g *Guard) String() string {
	if g == nil || len(g.Conditions) == 0 {
		return ""
	}
	parts := make([]string, len(g.Conditions))
	for i, cond := range g.Conditions {
		parts[i] = cond.String()
	}
	return strings.Join(parts, " && ")
}

// Evaluate the guard against an environment. A nil guard is always satisfied.
func (g *Guard) Evaluate(env Environment) bool {
	if g == nil {
		return true
	}
	for _, cond := range g.Conditions {
		if !cond.Evaluate(env) {
			return false
		}
	}
	return true
}

// UsesConfiguration returns true if any condition reads configuration.
func (g *Guard) UsesConfiguration() bool {
	if g == nil {
		return false
	}
	for _, cond := range g.Conditions {
		if !cond.IsEnvironment() {
			return true
		}
	}
	return false
}

// UsesEnvironment returns true if any condition reads the environment name.
func (g *Guard) UsesEnvironment() bool {
	if g == nil {
		return false
	}
	for _, cond := range g.Conditions {
		if cond.IsEnvironment() {
			return true
		}
	}
	return false
}

// Contradictions returns a description of each pair of conditions that can never both hold.
func (g *Guard) Contradictions() []string {
	if g == nil {
		return nil
	}
	var out []string
	for i, a := range g.Conditions {
		for _, b := range g.Conditions[i+1:] {
			if contradicts(a, b) || contradicts(b, a) {
				out = append(out, fmt.Sprintf("%s && %s", a, b))
			}
		}
	}
	return out
}

func contradicts(a, b Condition) bool {
	switch {
	case a.Kind == EnvironmentEquals && b.Kind == EnvironmentExcludes:
		// Every allowed environment is also excluded.
		for _, env := range a.Environments {
			if !(Environment{Name: env}).matches(b.Environments) {
				return false
			}
		}
		return len(a.Environments) > 0
	case a.Kind == EnvironmentEquals && b.Kind == EnvironmentEquals:
		for _, env := range a.Environments {
			if (Environment{Name: env}).matches(b.Environments) {
				return false
			}
		}
		return len(a.Environments) > 0 && len(b.Environments) > 0
	case a.Kind == ConfigKeyEquals && b.Kind == ConfigKeyNotEquals:
		return a.Key == b.Key && a.Value == b.Value
	case a.Kind == ConfigKeyEquals && b.Kind == ConfigKeyEquals:
		return a.Key == b.Key && a.Value != b.Value
	}
	return false
}

// Environment is the state a [Guard] is evaluated against.
type Environment struct {
	Name   string
	Config map[string]string
}

func (e Environment) matches(names []string) bool {
	for _, name := range names {
		if strings.EqualFold(strings.TrimSpace(name), e.Name) {
			return true
		}
	}
	return false
}
