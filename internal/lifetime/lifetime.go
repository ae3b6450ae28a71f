// Package lifetime infers unspecified service lifetimes and validates captive dependencies.
package lifetime

import (
	"context"
	"strings"

	"github.com/alecthomas/errors"

	"github.com/alecthomas/diplan/internal/depgraph"
	"github.com/alecthomas/diplan/internal/descriptor"
	"github.com/alecthomas/diplan/internal/diag"
)

// Policy decides the lifetime of a service that does not declare one.
type Policy int

const (
	// DefaultScoped infers Scoped.
	DefaultScoped Policy = iota
	// DefaultTransient infers Transient.
	DefaultTransient
	// DefaultSingleton infers Singleton.
	DefaultSingleton
	// FromDependencies infers the lifetime from the resolved single dependencies: Scoped if any is Scoped, Transient
	// if any is Transient, otherwise Singleton. Services in a dependency cycle fall back to Scoped.
	FromDependencies
)

var policyNames = []string{"scoped", "transient", "singleton", "dependencies"}

func (p Policy) String() string {
	if p >= 0 && int(p) < len(policyNames) {
		return policyNames[p]
	}
	return "invalid"
}

func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Policy) UnmarshalText(text []byte) error {
	for i, name := range policyNames {
		if strings.EqualFold(name, string(text)) {
			*p = Policy(i)
			return nil
		}
	}
	return errors.Errorf("invalid lifetime policy %q, expected one of %s", text, strings.Join(policyNames, ", "))
}

// Lifetimes holds the effective lifetime of every node, indexed by NodeID.
type Lifetimes []descriptor.Lifetime

// Of returns the effective lifetime of a node.
func (l Lifetimes) Of(id depgraph.NodeID) descriptor.Lifetime { return l[id] }

type state int

const (
	unvisited state = iota
	visiting
	done
)

// Infer the effective lifetime of every node in the graph.
func Infer(ctx context.Context, g *depgraph.Graph, policy Policy) (Lifetimes, error) {
	out := make(Lifetimes, g.Len())
	states := make([]state, g.Len())
	var infer func(id depgraph.NodeID) descriptor.Lifetime
	infer = func(id depgraph.NodeID) descriptor.Lifetime {
		switch states[id] {
		case done:
			return out[id]
		case visiting:
			return descriptor.Scoped
		}
		states[id] = visiting
		lifetime := g.Node(id).Service.Lifetime
		if lifetime == descriptor.Unspecified {
			switch policy {
			case DefaultTransient:
				lifetime = descriptor.Transient
			case DefaultSingleton:
				lifetime = descriptor.Singleton
			case FromDependencies:
				lifetime = descriptor.Singleton
				for _, edge := range g.Edges(id) {
					if !edge.Single() || edge.Winner == depgraph.None {
						continue
					}
					if edge.Winner == id {
						continue
					}
					switch infer(edge.Winner) {
					case descriptor.Scoped:
						lifetime = descriptor.Scoped
					case descriptor.Transient:
						if lifetime != descriptor.Scoped {
							lifetime = descriptor.Transient
						}
					}
				}
			default:
				lifetime = descriptor.Scoped
			}
		}
		out[id] = lifetime
		states[id] = done
		return lifetime
	}
	for node := range g.Nodes() {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		infer(node.ID)
	}
	return out, nil
}

// Violation is a captive dependency.
type Violation struct {
	Consumer   depgraph.NodeID
	Dependency depgraph.NodeID
	// Severity is Error for a scoped dependency and Warning for a transient one.
	Severity diag.Severity
	// Inherited is true if the edge was declared by a base type.
	Inherited bool
}

// Validate every single edge of every registrable node against the captive dependency rules, reporting violations to
// the sink.
//
// Abstract and static nodes are skipped: their edges are validated through the nodes that inherit them.
func Validate(ctx context.Context, g *depgraph.Graph, lifetimes Lifetimes, sink *diag.Sink) ([]Violation, error) {
	var violations []Violation
	for node := range g.Nodes() {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		if !node.Service.Registrable() || lifetimes.Of(node.ID) != descriptor.Singleton {
			continue
		}
		seen := map[depgraph.NodeID]bool{}
		for _, edge := range g.Edges(node.ID) {
			if !edge.Single() || edge.Winner == depgraph.None || seen[edge.Winner] {
				continue
			}
			target := g.Node(edge.Winner).Service
			types := []descriptor.TypeID{node.Service.Type, target.Type}
			switch lifetimes.Of(edge.Winner) {
			case descriptor.Scoped:
				sink.Report(diag.CaptiveDependency, types, node.Service.Type, target.Type)
				violations = append(violations, Violation{node.ID, edge.Winner, diag.Error, edge.Inherited})
			case descriptor.Transient:
				sink.Report(diag.CaptiveTransient, types, node.Service.Type, target.Type)
				violations = append(violations, Violation{node.ID, edge.Winner, diag.Warning, edge.Inherited})
			default:
				continue
			}
			seen[edge.Winner] = true
		}
	}
	return violations, nil
}
