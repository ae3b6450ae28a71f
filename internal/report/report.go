// Package report renders analysis results as coloured text, JSON, YAML or repr.
package report

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/alecthomas/errors"
	"github.com/alecthomas/repr"
	"gopkg.in/yaml.v3"

	"github.com/alecthomas/diplan/internal/depgraph"
	"github.com/alecthomas/diplan/internal/descriptor"
	"github.com/alecthomas/diplan/internal/diag"
	"github.com/alecthomas/diplan/internal/engine"
	"github.com/alecthomas/diplan/internal/inject"
	"github.com/alecthomas/diplan/internal/planner"
)

// Format of a report.
type Format int

const (
	Text Format = iota
	JSON
	YAML
	Repr
)

var formatNames = []string{"text", "json", "yaml", "repr"}

func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return "unknown"
}

func (f Format) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Format) UnmarshalText(text []byte) error {
	for i, name := range formatNames {
		if strings.EqualFold(name, string(text)) {
			*f = Format(i)
			return nil
		}
	}
	return errors.Errorf("unknown format %q, expected one of %s", text, strings.Join(formatNames, ", "))
}

type reportOptions struct {
	color bool
	env   *descriptor.Environment
}

type Option func(*reportOptions)

// WithColor enables coloured text output.
func WithColor(enable bool) Option {
	return func(o *reportOptions) { o.color = enable }
}

// WithEnvironment restricts the registration plan to the entries active in env.
func WithEnvironment(env descriptor.Environment) Option {
	return func(o *reportOptions) { o.env = &env }
}

// PlanDocument is the structured form of a plan report.
type PlanDocument struct {
	// Environment the registration plan was filtered to, if any.
	Environment  string         `json:"environment,omitempty" yaml:"environment,omitempty"`
	Registration *planner.Plan  `json:"registration" yaml:"registration"`
	Injection    []*inject.Plan `json:"injection" yaml:"injection"`
	Diagnostics  diag.Set       `json:"diagnostics" yaml:"diagnostics"`
}

// NewPlanDocument builds the structured plan report of a result.
func NewPlanDocument(result *engine.Result, options ...Option) *PlanDocument {
	opts := apply(options)
	doc := &PlanDocument{
		Registration: result.Registration,
		Injection:    result.Injection.List,
		Diagnostics:  result.Diagnostics,
	}
	if opts.env != nil {
		filtered := *result.Registration
		filtered.Entries = result.Registration.Active(*opts.env)
		doc.Registration = &filtered
		doc.Environment = opts.env.Name
	}
	return doc
}

// Plan writes the registration plan, constructors and diagnostics of a result.
func Plan(w io.Writer, format Format, result *engine.Result, options ...Option) error {
	doc := NewPlanDocument(result, options...)
	if format == Text {
		t := newText(w, apply(options))
		t.plan(doc)
		t.diagnostics(doc.Diagnostics)
		return t.err
	}
	return encode(w, format, doc)
}

// Diagnostics writes diagnostics alone.
func Diagnostics(w io.Writer, format Format, diagnostics diag.Set, options ...Option) error {
	if format == Text {
		t := newText(w, apply(options))
		t.diagnostics(diagnostics)
		return t.err
	}
	if diagnostics == nil {
		diagnostics = diag.Set{}
	}
	return encode(w, format, diagnostics)
}

// GraphEdge is a resolved dependency in a graph report.
type GraphEdge struct {
	From        descriptor.TypeID      `json:"from" yaml:"from"`
	Target      descriptor.ContractID  `json:"target" yaml:"target"`
	Cardinality descriptor.Cardinality `json:"cardinality" yaml:"cardinality"`
	Origin      descriptor.Origin      `json:"origin" yaml:"origin"`
	// InheritedFrom is the base type that declared the dependency, if any.
	InheritedFrom descriptor.TypeID   `json:"inheritedFrom,omitempty" yaml:"inherited-from,omitempty"`
	Resolved      []descriptor.TypeID `json:"resolved" yaml:"resolved"`
}

// NewGraphEdges lists every edge of a graph, in discovery order.
func NewGraphEdges(g *depgraph.Graph) []GraphEdge {
	out := []GraphEdge{}
	for edge := range g.AllEdges() {
		ge := GraphEdge{
			From:        g.Node(edge.From).Service.Type,
			Target:      edge.Dependency.Target,
			Cardinality: edge.Dependency.Cardinality,
			Origin:      edge.Dependency.Origin,
			Resolved:    []descriptor.TypeID{},
		}
		if edge.Inherited {
			ge.InheritedFrom = g.Node(edge.Declarer).Service.Type
		}
		for _, id := range edge.Targets() {
			ge.Resolved = append(ge.Resolved, g.Node(id).Service.Type)
		}
		out = append(out, ge)
	}
	return out
}

// Graph writes the resolved edges of a graph.
func Graph(w io.Writer, format Format, g *depgraph.Graph, options ...Option) error {
	edges := NewGraphEdges(g)
	if format == Text {
		t := newText(w, apply(options))
		t.graph(edges)
		return t.err
	}
	return encode(w, format, edges)
}

func encode(w io.Writer, format Format, v any) error {
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "failed to encode JSON")
		}
		return nil
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "failed to encode YAML")
		}
		return errors.WithStack(enc.Close())
	case Repr:
		repr.New(w, repr.Indent("  "), repr.OmitEmpty(true)).Println(v)
		return nil
	default:
		return errors.Errorf("unsupported format %s", format)
	}
}

func apply(options []Option) *reportOptions {
	opts := &reportOptions{}
	for _, option := range options {
		option(opts)
	}
	return opts
}
