package engine

import (
	"context"

	"github.com/alecthomas/errors"

	"github.com/alecthomas/diplan/internal/depgraph"
	"github.com/alecthomas/diplan/internal/descriptor"
	"github.com/alecthomas/diplan/internal/diag"
)

// validateStructure reports duplicate and structurally invalid descriptors, returning the nodes that must be left out
// of the plans.
func validateStructure(ctx context.Context, g *depgraph.Graph, sink *diag.Sink) ([]depgraph.NodeID, error) {
	for _, svc := range g.Duplicates() {
		sink.Report(diag.DuplicateDescriptor, []descriptor.TypeID{svc.Type}, svc.Type)
	}
	var excluded []depgraph.NodeID
	for node := range g.Nodes() {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		svc := node.Service
		types := []descriptor.TypeID{svc.Type}
		problems := svc.Validate()
		if node.BaseCycle {
			problems = append(problems, "base type chain is cyclic")
		}
		for _, problem := range problems {
			sink.Report(diag.InvalidDirective, types, svc.Type, problem)
		}
		if len(problems) > 0 {
			excluded = append(excluded, node.ID)
		}
		if svc.Base != "" && node.Base == depgraph.None {
			sink.Report(diag.UnknownBaseType, []descriptor.TypeID{svc.Type, svc.Base}, svc.Type, svc.Base)
		}
	}
	return excluded, nil
}

// checkResolvable reports single dependencies that no service satisfies. Dependencies of external services are
// satisfied outside the analysis and not checked. Inherited edges are checked once, on the declaring node.
func checkResolvable(ctx context.Context, g *depgraph.Graph, sink *diag.Sink) error {
	for node := range g.Nodes() {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		if node.Service.External {
			continue
		}
		for _, edge := range g.Edges(node.ID) {
			if edge.Inherited || !edge.Single() || len(edge.Candidates) > 0 {
				continue
			}
			sink.Report(diag.UnresolvableDependency, []descriptor.TypeID{node.Service.Type}, node.Service.Type, edge.Dependency.Target)
		}
	}
	return nil
}
