// Package cycle detects construction cycles in a dependency graph.
//
// Only single edges take part: a collection is resolved lazily by the registry so it can not create a construction
// cycle.
package cycle

import (
	"context"
	"strings"

	"github.com/alecthomas/errors"

	"github.com/alecthomas/diplan/internal/depgraph"
	"github.com/alecthomas/diplan/internal/descriptor"
	"github.com/alecthomas/diplan/internal/diag"
)

// ExternalPolicy controls how external descriptors take part in cycle detection.
type ExternalPolicy int

const (
	// Traverse treats external descriptors as ordinary nodes.
	Traverse ExternalPolicy = iota
	// Boundary cuts edges into external descriptors before analysis.
	Boundary
	// Suppress does not report cycles that contain an external descriptor.
	Suppress
)

var policyNames = []string{"traverse", "boundary", "suppress"}

func (p ExternalPolicy) String() string {
	if int(p) < len(policyNames) && p >= 0 {
		return policyNames[p]
	}
	return "invalid"
}

func (p ExternalPolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *ExternalPolicy) UnmarshalText(text []byte) error {
	for i, name := range policyNames {
		if strings.EqualFold(name, string(text)) {
			*p = ExternalPolicy(i)
			return nil
		}
	}
	return errors.Errorf("invalid external policy %q, expected one of %s", text, strings.Join(policyNames, ", "))
}

// Cycle is a set of nodes that depend on each other through single edges.
type Cycle struct {
	// Nodes in discovery order.
	Nodes []depgraph.NodeID
	Types []descriptor.TypeID
}

// Detect cycles in the graph, reporting one cycle-detected warning per cycle to the sink.
func Detect(ctx context.Context, g *depgraph.Graph, policy ExternalPolicy, sink *diag.Sink) ([]Cycle, error) {
	var keep func(*depgraph.Edge) bool
	if policy == Boundary {
		keep = func(edge *depgraph.Edge) bool { return !g.Node(edge.Winner).Service.External }
	}
	var cycles []Cycle
	for _, component := range g.Components(keep) {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		if len(component) == 1 && !g.SelfLoop(component[0], keep) {
			continue
		}
		cycle := Cycle{Nodes: component}
		external := false
		for _, id := range component {
			svc := g.Node(id).Service
			cycle.Types = append(cycle.Types, svc.Type)
			external = external || svc.External
		}
		if external && policy == Suppress {
			continue
		}
		cycles = append(cycles, cycle)
		sink.Report(diag.CycleDetected, cycle.Types, diag.JoinTypes(cycle.Types))
	}
	return cycles, nil
}
