// Package inject synthesises the constructor parameters and field assignments of each service.
//
// Parameters are ordered: the base type's parameters first, forwarded to the base call, then bulk-declared
// dependencies, then field dependencies and configuration bindings in declaration order. Configuration values and
// sections are read through a single configuration-access parameter.
package inject

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/alecthomas/errors"

	"github.com/alecthomas/diplan/internal/depgraph"
	"github.com/alecthomas/diplan/internal/descriptor"
	"github.com/alecthomas/diplan/internal/strcase"
)

// ConfigurationType is the type of the configuration-access parameter.
const ConfigurationType = "Configuration"

// BindingKind is how a parameter is supplied.
type BindingKind int

const (
	// ServiceBinding resolves a single service from the registry.
	ServiceBinding BindingKind = iota
	// CollectionBinding resolves every service registered for a contract.
	CollectionBinding
	// OptionsBinding is supplied by the registry's options subsystem.
	OptionsBinding
	// ConfigurationBinding is the configuration-access parameter.
	ConfigurationBinding
)

var bindingNames = []string{"service", "collection", "options", "configuration"}

func (b BindingKind) String() string { return bindingNames[b] }

func (b BindingKind) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// LookupKind is how a configuration-bound field reads its value.
type LookupKind int

const (
	// ValueLookup reads a single keyed value.
	ValueLookup LookupKind = iota
	// SectionLookup binds a whole section.
	SectionLookup
)

func (l LookupKind) String() string {
	if l == SectionLookup {
		return "section"
	}
	return "value"
}

func (l LookupKind) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// Parameter of a synthesised constructor.
type Parameter struct {
	Name    string         `json:"name" yaml:"name"`
	Type    string         `json:"type" yaml:"type"`
	Kind    BindingKind    `json:"kind" yaml:"kind"`
	Options OptionsVariant `json:"options,omitempty" yaml:"options,omitempty"`
	// Inherited parameters are forwarded to the base call.
	Inherited bool `json:"inherited,omitempty" yaml:"inherited,omitempty"`
}

// ConfigLookup reads a configuration-bound field.
type ConfigLookup struct {
	Kind    LookupKind `json:"kind" yaml:"kind"`
	Key     string     `json:"key" yaml:"key"`
	Type    string     `json:"type" yaml:"type"`
	Default *string    `json:"default,omitempty" yaml:"default,omitempty"`
	// Parameter is the name of the configuration-access parameter.
	Parameter string `json:"parameter" yaml:"parameter"`
}

// Assignment of a field in the synthesised constructor.
type Assignment struct {
	Field string `json:"field" yaml:"field"`
	// Parameter the field is assigned from, if it is not a configuration lookup.
	Parameter string        `json:"parameter,omitempty" yaml:"parameter,omitempty"`
	Config    *ConfigLookup `json:"config,omitempty" yaml:"config,omitempty"`
}

// Plan is the synthesised constructor of one service.
type Plan struct {
	Type descriptor.TypeID `json:"type" yaml:"type"`
	// Base is the type whose constructor is called with BaseArguments.
	Base          descriptor.TypeID `json:"base,omitempty" yaml:"base,omitempty"`
	Parameters    []Parameter       `json:"parameters" yaml:"parameters"`
	Fields        []Assignment      `json:"fields" yaml:"fields"`
	BaseArguments []string          `json:"baseArguments,omitempty" yaml:"base-arguments,omitempty"`
	// ConfigurationParameter is the name of the configuration-access parameter, if any.
	ConfigurationParameter string `json:"configurationParameter,omitempty" yaml:"configuration-parameter,omitempty"`
}

// Plans are the synthesised constructors of every service that needs one, in discovery order.
type Plans struct {
	List   []*Plan `json:"plans" yaml:"plans"`
	byType map[descriptor.TypeID]*Plan
}

// Lookup the plan for a type.
func (p *Plans) Lookup(id descriptor.TypeID) (*Plan, bool) {
	plan, ok := p.byType[id]
	return plan, ok
}

type synthOptions struct {
	classify Classifier
	exclude  map[depgraph.NodeID]bool
}

type Option func(*synthOptions) error

// WithClassifier overrides the classification of configuration-bound types.
func WithClassifier(classifier Classifier) Option {
	return func(o *synthOptions) error {
		if classifier == nil {
			return errors.Errorf("classifier must not be nil")
		}
		o.classify = classifier
		return nil
	}
}

// Exclude nodes from the output. Excluded nodes are still used as bases.
func Exclude(ids ...depgraph.NodeID) Option {
	return func(o *synthOptions) error {
		for _, id := range ids {
			o.exclude[id] = true
		}
		return nil
	}
}

// Synthesize constructor plans for every non-static node of the graph.
//
// A node with no parameters, including inherited ones, has no plan.
func Synthesize(ctx context.Context, g *depgraph.Graph, options ...Option) (*Plans, error) {
	opts := &synthOptions{classify: DefaultClassifier, exclude: map[depgraph.NodeID]bool{}}
	for _, option := range options {
		if err := option(opts); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	s := &synthesizer{
		g:        g,
		classify: opts.classify,
		memo:     map[depgraph.NodeID]*Plan{},
		visiting: map[depgraph.NodeID]bool{},
	}
	plans := &Plans{List: []*Plan{}, byType: map[descriptor.TypeID]*Plan{}}
	for node := range g.Nodes() {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		if node.Service.Static || opts.exclude[node.ID] {
			continue
		}
		if plan := s.plan(node.ID); plan != nil {
			plans.List = append(plans.List, plan)
			plans.byType[plan.Type] = plan
		}
	}
	return plans, nil
}

type synthesizer struct {
	g        *depgraph.Graph
	classify Classifier
	memo     map[depgraph.NodeID]*Plan
	visiting map[depgraph.NodeID]bool
}

type bindingKey struct {
	kind   BindingKind
	target string
}

// builder accumulates the parameters of one plan.
type builder struct {
	plan     *Plan
	names    map[string]bool
	byTarget map[bindingKey]string
}

func (b *builder) unique(name string) string {
	if name == "" {
		name = "dep"
	}
	name = strcase.Identifier(name)
	candidate := name
	for i := 2; b.names[candidate]; i++ {
		candidate = name + strconv.Itoa(i)
	}
	b.names[candidate] = true
	return candidate
}

// parameter returns the name of the parameter for a binding, adding it if necessary.
func (b *builder) parameter(param Parameter) string {
	key := bindingKey{param.Kind, param.Type}
	if name, ok := b.byTarget[key]; ok {
		return name
	}
	param.Name = b.unique(param.Name)
	b.byTarget[key] = param.Name
	b.plan.Parameters = append(b.plan.Parameters, param)
	return param.Name
}

func (b *builder) configuration() string {
	if b.plan.ConfigurationParameter == "" {
		b.plan.ConfigurationParameter = b.parameter(Parameter{Name: "config", Type: ConfigurationType, Kind: ConfigurationBinding})
	}
	return b.plan.ConfigurationParameter
}

func (s *synthesizer) plan(id depgraph.NodeID) *Plan {
	if plan, ok := s.memo[id]; ok {
		return plan
	}
	if s.visiting[id] {
		return nil
	}
	s.visiting[id] = true
	defer delete(s.visiting, id)

	node := s.g.Node(id)
	b := &builder{
		plan:     &Plan{Type: node.Service.Type, Parameters: []Parameter{}, Fields: []Assignment{}},
		names:    map[string]bool{},
		byTarget: map[bindingKey]string{},
	}

	if node.Base != depgraph.None && !node.BaseCycle {
		if base := s.plan(node.Base); base != nil {
			b.plan.Base = base.Type
			for _, param := range base.Parameters {
				param.Inherited = true
				b.names[param.Name] = true
				b.byTarget[bindingKey{param.Kind, param.Type}] = param.Name
				b.plan.Parameters = append(b.plan.Parameters, param)
				b.plan.BaseArguments = append(b.plan.BaseArguments, param.Name)
			}
			b.plan.ConfigurationParameter = base.ConfigurationParameter
		}
	}

	for _, dep := range node.Service.ActiveDependencies() {
		switch dep.Origin {
		case descriptor.BulkDeclaration, descriptor.FieldMarker:
			kind := ServiceBinding
			if dep.Cardinality == descriptor.Collection {
				kind = CollectionBinding
			}
			name := b.parameter(Parameter{Name: parameterName(dep), Type: string(dep.Target), Kind: kind})
			if dep.Field != "" {
				b.plan.Fields = append(b.plan.Fields, Assignment{Field: dep.Field, Parameter: name})
			}

		case descriptor.ConfigurationBinding:
			s.bindConfiguration(b, dep)
		}
	}

	if len(b.plan.Parameters) == 0 {
		s.memo[id] = nil
		return nil
	}
	s.memo[id] = b.plan
	return b.plan
}

func (s *synthesizer) bindConfiguration(b *builder, dep descriptor.Dependency) {
	class := s.classify(dep.Target)
	binding := dep.Config
	if binding == nil {
		binding = &descriptor.ConfigBinding{}
	}
	switch class.Category {
	case OptionsWrapper:
		name := b.parameter(Parameter{Name: parameterName(dep), Type: string(dep.Target), Kind: OptionsBinding, Options: class.Options})
		b.plan.Fields = append(b.plan.Fields, Assignment{Field: dep.Field, Parameter: name})
		return

	case Scalar:
		key := binding.Key
		if key == "" {
			key = strcase.UpperCamel(dep.Field)
		}
		b.plan.Fields = append(b.plan.Fields, Assignment{Field: dep.Field, Config: &ConfigLookup{
			Kind:      ValueLookup,
			Key:       key,
			Type:      string(dep.Target),
			Default:   binding.Default,
			Parameter: b.configuration(),
		}})

	case Complex, Collection:
		key := binding.Key
		if key == "" {
			typeName := string(dep.Target)
			if class.Category == Collection {
				typeName = class.Element
			}
			key = SectionName(typeName, dep.Field)
		}
		b.plan.Fields = append(b.plan.Fields, Assignment{Field: dep.Field, Config: &ConfigLookup{
			Kind:      SectionLookup,
			Key:       key,
			Type:      string(dep.Target),
			Default:   binding.Default,
			Parameter: b.configuration(),
		}})
	}
}

var sectionSuffixes = []string{"Configuration", "Settings", "Config"}

// SectionName infers a configuration section name from a type name, eg. "app.DatabaseSettings" becomes "Database".
//
// Builtin types and names that are nothing but a suffix fall back to the field name.
func SectionName(typeName, field string) string {
	local := localName(typeName)
	for _, suffix := range sectionSuffixes {
		if trimmed, ok := strings.CutSuffix(local, suffix); ok {
			local = trimmed
			break
		}
	}
	if local == "" || !unicode.IsUpper([]rune(local)[0]) {
		return strcase.UpperCamel(field)
	}
	return local
}

func parameterName(dep descriptor.Dependency) string {
	if dep.Name != "" {
		return dep.Name
	}
	if dep.Field != "" {
		return strcase.LowerCamel(strings.TrimLeft(dep.Field, "_"))
	}
	local := localName(string(dep.Target))
	if runes := []rune(local); len(runes) > 2 && runes[0] == 'I' && unicode.IsUpper(runes[1]) && unicode.IsLower(runes[2]) {
		local = string(runes[1:])
	}
	name := strcase.LowerCamel(local)
	if dep.Cardinality == descriptor.Collection && !strings.HasSuffix(name, "s") {
		name += "s"
	}
	return name
}
