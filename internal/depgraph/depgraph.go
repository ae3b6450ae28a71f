package depgraph

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"slices"

	"github.com/alecthomas/errors"

	"github.com/alecthomas/diplan/internal/descriptor"
)

// NodeID is the index of a [Node] in the graph arena.
type NodeID int

// None is the NodeID of a missing node.
const None NodeID = -1

// Match is how a candidate satisfies a contract. Higher is more specific.
type Match int

const (
	MatchGeneric Match = iota
	MatchAncestor
	MatchDeclared
	MatchType
)

var matchNames = []string{"generic", "ancestor", "declared", "type"}

func (m Match) String() string { return matchNames[m] }

// Candidate is a node that can satisfy a contract.
type Candidate struct {
	Node  NodeID
	Match Match
}

// Node is a single descriptor in the graph.
type Node struct {
	ID      NodeID
	Service *descriptor.Service
	// Contracts are the declared contracts followed by their ancestors.
	Contracts []descriptor.ContractID
	// Base is the node of the base type, or None.
	Base NodeID
	// BaseCycle is true if the base chain of this node loops back on itself.
	BaseCycle bool
	chain     []NodeID
	edges     []int
}

func (n *Node) String() string { return string(n.Service.Type) }

// Edge is a dependency of a node on a contract.
type Edge struct {
	// From is the consuming node.
	From NodeID
	// Declarer is the node that declares the dependency. It differs from From for inherited edges.
	Declarer   NodeID
	Dependency descriptor.Dependency
	Inherited  bool
	// Candidates that satisfy the target, in discovery order.
	Candidates []Candidate
	// Winner is the candidate selected for single edges, or None if the edge is unresolved or a collection.
	Winner NodeID
}

// Single returns true for single-cardinality edges.
func (e *Edge) Single() bool { return e.Dependency.Cardinality == descriptor.Single }

// Targets returns the nodes this edge depends on: the winner for single edges, every candidate for collections.
func (e *Edge) Targets() []NodeID {
	if e.Single() {
		if e.Winner == None {
			return nil
		}
		return []NodeID{e.Winner}
	}
	out := make([]NodeID, len(e.Candidates))
	for i, candidate := range e.Candidates {
		out[i] = candidate.Node
	}
	return out
}

type graphOptions struct {
	logger *slog.Logger
}

type Option func(*graphOptions) error

// WithLogger logs resolution at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(o *graphOptions) error {
		if logger == nil {
			return errors.Errorf("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// Graph is the resolved dependency graph. It is immutable once built and safe for concurrent reads.
type Graph struct {
	nodes      []*Node
	edges      []*Edge
	byType     map[descriptor.TypeID]NodeID
	extends    map[descriptor.ContractID][]descriptor.ContractID
	resolved   map[descriptor.ContractID][]Candidate
	duplicates []*descriptor.Service
	order      []NodeID
}

// Build the graph for a descriptor set.
//
// The context is checked between descriptors.
func Build(ctx context.Context, set *descriptor.Set, options ...Option) (*Graph, error) {
	if set == nil {
		return nil, errors.Errorf("descriptor set is nil")
	}
	opts := &graphOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, option := range options {
		if err := option(opts); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	g := &Graph{
		byType:   make(map[descriptor.TypeID]NodeID, len(set.Services)),
		extends:  make(map[descriptor.ContractID][]descriptor.ContractID, len(set.Contracts)),
		resolved: map[descriptor.ContractID][]Candidate{},
	}
	for _, contract := range set.Contracts {
		g.extends[contract.ID] = append(g.extends[contract.ID], contract.Extends...)
	}

	for _, svc := range set.Services {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		if _, ok := g.byType[svc.Type]; ok {
			g.duplicates = append(g.duplicates, svc)
			continue
		}
		id := NodeID(len(g.nodes))
		g.byType[svc.Type] = id
		node := &Node{ID: id, Service: svc, Base: None}
		node.Contracts = g.closure(svc.Contracts)
		g.nodes = append(g.nodes, node)
	}

	for _, node := range g.nodes {
		if base := node.Service.Base; base != "" {
			if id, ok := g.byType[base]; ok {
				node.Base = id
			}
		}
	}
	for _, node := range g.nodes {
		node.chain, node.BaseCycle = g.walkBases(node)
	}

	for _, node := range g.nodes {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		// Deepest base first, so inherited edges precede the node's own.
		declarers := slices.Clone(node.chain)
		slices.Reverse(declarers)
		declarers = append(declarers, node.ID)
		for _, declarer := range declarers {
			for _, dep := range g.nodes[declarer].Service.ActiveDependencies() {
				if !dep.Injectable() {
					continue
				}
				candidates, ok := g.resolved[dep.Target]
				if !ok {
					candidates = g.resolve(dep.Target)
					g.resolved[dep.Target] = candidates
					opts.logger.Debug("Resolved contract", "contract", dep.Target, "candidates", len(candidates))
				}
				edge := &Edge{
					From:       node.ID,
					Declarer:   declarer,
					Dependency: dep,
					Inherited:  declarer != node.ID,
					Candidates: candidates,
					Winner:     None,
				}
				if edge.Single() {
					edge.Winner = winner(candidates)
				}
				node.edges = append(node.edges, len(g.edges))
				g.edges = append(g.edges, edge)
			}
		}
	}

	g.order = g.dependencyOrder()
	return g, nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node with the given ID.
func (g *Graph) Node(id NodeID) *Node { return g.nodes[id] }

// Nodes returns every node in discovery order.
func (g *Graph) Nodes() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for _, node := range g.nodes {
			if !yield(node) {
				return
			}
		}
	}
}

// Lookup a node by TypeID.
func (g *Graph) Lookup(id descriptor.TypeID) (*Node, bool) {
	nid, ok := g.byType[id]
	if !ok {
		return nil, false
	}
	return g.nodes[nid], true
}

// Edges returns the edges of a node, inherited edges first.
func (g *Graph) Edges(id NodeID) []*Edge {
	node := g.nodes[id]
	out := make([]*Edge, len(node.edges))
	for i, e := range node.edges {
		out[i] = g.edges[e]
	}
	return out
}

// AllEdges returns every edge, grouped by consuming node in discovery order.
func (g *Graph) AllEdges() iter.Seq[*Edge] {
	return func(yield func(*Edge) bool) {
		for _, edge := range g.edges {
			if !yield(edge) {
				return
			}
		}
	}
}

// Duplicates returns descriptors dropped because an earlier descriptor had the same TypeID.
func (g *Graph) Duplicates() []*descriptor.Service { return g.duplicates }

// BaseChain returns the bases of a node, nearest first. A cyclic chain is truncated before it repeats.
func (g *Graph) BaseChain(id NodeID) []NodeID { return g.nodes[id].chain }

// Ancestors returns the transitive closure of the contracts a contract extends, excluding itself.
func (g *Graph) Ancestors(contract descriptor.ContractID) []descriptor.ContractID {
	closure := g.closure([]descriptor.ContractID{contract})
	return closure[1:]
}

// Candidates returns the nodes that satisfy a contract.
func (g *Graph) Candidates(contract descriptor.ContractID) []Candidate {
	if candidates, ok := g.resolved[contract]; ok {
		return candidates
	}
	return g.resolve(contract)
}

// Resolve a contract to the node a single dependency would receive.
func (g *Graph) Resolve(contract descriptor.ContractID) (*Node, bool) {
	id := winner(g.Candidates(contract))
	if id == None {
		return nil, false
	}
	return g.nodes[id], true
}

// Order returns every node in dependency order: the targets of a node's single edges precede it, unless they are
// part of the same cycle, in which case discovery order is used.
func (g *Graph) Order() []NodeID { return g.order }

func (g *Graph) closure(contracts []descriptor.ContractID) []descriptor.ContractID {
	out := make([]descriptor.ContractID, 0, len(contracts))
	seen := map[descriptor.ContractID]bool{}
	for _, contract := range contracts {
		if !seen[contract] {
			seen[contract] = true
			out = append(out, contract)
		}
	}
	for i := 0; i < len(out); i++ {
		for _, parent := range g.extends[out[i]] {
			if !seen[parent] {
				seen[parent] = true
				out = append(out, parent)
			}
		}
	}
	return out
}

func (g *Graph) walkBases(node *Node) (chain []NodeID, cyclic bool) {
	seen := map[NodeID]bool{node.ID: true}
	for id := node.Base; id != None; id = g.nodes[id].Base {
		if seen[id] {
			return chain, true
		}
		seen[id] = true
		chain = append(chain, id)
	}
	return chain, false
}

func (g *Graph) resolve(contract descriptor.ContractID) []Candidate {
	var out []Candidate
	for _, node := range g.nodes {
		if !node.Service.Registrable() {
			continue
		}
		if match, ok := g.match(node, contract); ok {
			out = append(out, Candidate{Node: node.ID, Match: match})
		}
	}
	return out
}

func (g *Graph) match(node *Node, contract descriptor.ContractID) (Match, bool) {
	svc := node.Service
	switch {
	case descriptor.ContractID(svc.Type) == contract:
		return MatchType, true
	case svc.Implements(contract):
		return MatchDeclared, true
	case slices.Contains(node.Contracts, contract):
		return MatchAncestor, true
	}
	if len(svc.TypeParams) == 0 {
		return 0, false
	}
	if matchGeneric(string(svc.Type), string(contract), svc.TypeParams) {
		return MatchGeneric, true
	}
	for _, candidate := range node.Contracts {
		if matchGeneric(string(candidate), string(contract), svc.TypeParams) {
			return MatchGeneric, true
		}
	}
	return 0, false
}

// The most specific candidate wins, ties going to the last discovered.
func winner(candidates []Candidate) NodeID {
	best := None
	bestMatch := Match(-1)
	for _, candidate := range candidates {
		if candidate.Match >= bestMatch {
			best = candidate.Node
			bestMatch = candidate.Match
		}
	}
	return best
}
