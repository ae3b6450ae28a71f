// Package descriptor contains the normalised model of annotated service types that the analysis engine consumes.
//
// A [Set] is an immutable snapshot: every pass reads it, none modify it.
package descriptor

import (
	"slices"
)

// TypeID uniquely identifies a candidate type, eg. "github.com/example/app.UserService".
type TypeID string

// ContractID identifies an interface-like contract, eg. "github.com/example/app.UserStore" or "app.Repo[app.User]".
type ContractID string

// Set is the complete, ordered input to an analysis pass.
type Set struct {
	// Services in discovery order.
	Services []*Service `yaml:"services" json:"services"`
	// Contracts optionally declares contract inheritance.
	Contracts []Contract `yaml:"contracts,omitempty" json:"contracts,omitempty"`
}

// Lookup a service by TypeID.
func (s *Set) Lookup(id TypeID) (*Service, bool) {
	for _, svc := range s.Services {
		if svc.Type == id {
			return svc, true
		}
	}
	return nil, false
}

// Contract declares the contracts a contract extends.
type Contract struct {
	ID      ContractID   `yaml:"id" json:"id"`
	Extends []ContractID `yaml:"extends,omitempty" json:"extends,omitempty"`
}

// Service describes one candidate type.
type Service struct {
	Type TypeID `yaml:"type" json:"type"`
	// TypeParams are the type parameter names of an open generic type.
	TypeParams []string `yaml:"type-params,omitempty" json:"typeParams,omitempty"`
	// Contracts implemented by the type, in declaration order.
	Contracts    []ContractID `yaml:"contracts,omitempty" json:"contracts,omitempty"`
	Lifetime     Lifetime     `yaml:"lifetime,omitempty" json:"lifetime,omitempty"`
	Dependencies []Dependency `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Directives   Directives   `yaml:"directives,omitempty" json:"directives,omitempty"`
	External     bool         `yaml:"external,omitempty" json:"external,omitempty"`
	Abstract     bool         `yaml:"abstract,omitempty" json:"abstract,omitempty"`
	Static       bool         `yaml:"static,omitempty" json:"static,omitempty"`
	// Base is the TypeID of the base type, if any.
	Base TypeID `yaml:"base,omitempty" json:"base,omitempty"`
	// Position of the declaration in source, used in messages only.
	Position string `yaml:"position,omitempty" json:"position,omitempty"`
}

// Registrable returns true if the service can be a registration target.
func (s *Service) Registrable() bool { return !s.Abstract && !s.Static }

// Implements returns true if the service declares the contract.
func (s *Service) Implements(contract ContractID) bool {
	return slices.Contains(s.Contracts, contract)
}

// ActiveDependencies returns the dependencies that take part in injection, ordered by origin and then declaration
// order: bulk declarations first, then field markers and configuration bindings.
//
// Static and abstract members are excluded.
func (s *Service) ActiveDependencies() []Dependency {
	out := make([]Dependency, 0, len(s.Dependencies))
	for _, dep := range s.Dependencies {
		if dep.Static || dep.Abstract {
			continue
		}
		out = append(out, dep)
	}
	slices.SortStableFunc(out, func(a, b Dependency) int {
		if ab, bb := a.Origin == BulkDeclaration, b.Origin == BulkDeclaration; ab != bb {
			if ab {
				return -1
			}
			return 1
		}
		return a.Order - b.Order
	})
	return out
}

func (s *Service) String() string { return string(s.Type) }

// Dependency is an edge from a service to a contract it needs.
type Dependency struct {
	Target      ContractID  `yaml:"target" json:"target"`
	Cardinality Cardinality `yaml:"cardinality,omitempty" json:"cardinality,omitempty"`
	Origin      Origin      `yaml:"origin,omitempty" json:"origin,omitempty"`
	// Order is the declaration order, used for deterministic parameter ordering.
	Order int `yaml:"order,omitempty" json:"order,omitempty"`
	// Field is the member the dependency is assigned to. Empty for bulk declarations.
	Field string `yaml:"field,omitempty" json:"field,omitempty"`
	// Name overrides the derived parameter name.
	Name   string         `yaml:"name,omitempty" json:"name,omitempty"`
	Config *ConfigBinding `yaml:"config,omitempty" json:"config,omitempty"`
	// Static and Abstract members are never injected.
	Static   bool `yaml:"static,omitempty" json:"static,omitempty"`
	Abstract bool `yaml:"abstract,omitempty" json:"abstract,omitempty"`
}

// Injectable returns true if the dependency is satisfied by the registry rather than by configuration.
func (d Dependency) Injectable() bool { return d.Origin != ConfigurationBinding }

// ConfigBinding binds a member to a configuration value or section.
type ConfigBinding struct {
	// Key is the explicit configuration key. If empty a key is derived.
	Key string `yaml:"key,omitempty" json:"key,omitempty"`
	// Default is an optional literal default value.
	Default *string `yaml:"default,omitempty" json:"default,omitempty"`
}

// Directives control how a service is registered.
type Directives struct {
	FanOut  FanOutMode      `yaml:"fan-out,omitempty" json:"fanOut,omitempty"`
	Sharing InstanceSharing `yaml:"sharing,omitempty" json:"sharing,omitempty"`
	// Skip contracts that would otherwise be registered.
	Skip  []ContractID `yaml:"skip,omitempty" json:"skip,omitempty"`
	Guard *Guard       `yaml:"guard,omitempty" json:"guard,omitempty"`
}
