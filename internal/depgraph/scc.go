package depgraph

import "slices"

// Components returns the strongly connected components of the graph formed by single edges with a winner, in
// discovery order of their first member. Members of each component are in discovery order.
//
// Edges for which keep returns false are ignored. A nil keep keeps every edge.
func (g *Graph) Components(keep func(*Edge) bool) [][]NodeID {
	t := &tarjan{
		g:       g,
		keep:    keep,
		index:   make([]int, len(g.nodes)),
		lowlink: make([]int, len(g.nodes)),
		onStack: make([]bool, len(g.nodes)),
	}
	for i := range t.index {
		t.index[i] = -1
	}
	for _, node := range g.nodes {
		if t.index[node.ID] == -1 {
			t.connect(node.ID)
		}
	}
	for _, component := range t.components {
		slices.Sort(component)
	}
	slices.SortFunc(t.components, func(a, b []NodeID) int { return int(a[0] - b[0]) })
	return t.components
}

// SelfLoop returns true if the node has a single edge whose winner is itself.
func (g *Graph) SelfLoop(id NodeID, keep func(*Edge) bool) bool {
	for _, edge := range g.Edges(id) {
		if edge.Single() && edge.Winner == id && (keep == nil || keep(edge)) {
			return true
		}
	}
	return false
}

type tarjan struct {
	g          *Graph
	keep       func(*Edge) bool
	counter    int
	index      []int
	lowlink    []int
	onStack    []bool
	stack      []NodeID
	components [][]NodeID
}

func (t *tarjan) connect(v NodeID) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, edge := range t.g.Edges(v) {
		if !edge.Single() || edge.Winner == None || (t.keep != nil && !t.keep(edge)) {
			continue
		}
		w := edge.Winner
		if t.index[w] == -1 {
			t.connect(w)
			t.lowlink[v] = min(t.lowlink[v], t.lowlink[w])
		} else if t.onStack[w] {
			t.lowlink[v] = min(t.lowlink[v], t.index[w])
		}
	}

	if t.lowlink[v] == t.index[v] {
		var component []NodeID
		for {
			w := t.stack[len(t.stack)-1]
			t.stack = t.stack[:len(t.stack)-1]
			t.onStack[w] = false
			component = append(component, w)
			if w == v {
				break
			}
		}
		t.components = append(t.components, component)
	}
}

// dependencyOrder visits the condensation of the graph depth first, in discovery order, emitting dependencies before
// their dependents.
func (g *Graph) dependencyOrder() []NodeID {
	components := g.Components(nil)
	componentOf := make([]int, len(g.nodes))
	for i, component := range components {
		for _, id := range component {
			componentOf[id] = i
		}
	}
	visited := make([]bool, len(components))
	order := make([]NodeID, 0, len(g.nodes))
	var visit func(c int)
	visit = func(c int) {
		visited[c] = true
		for _, id := range components[c] {
			for _, edge := range g.Edges(id) {
				if !edge.Single() || edge.Winner == None {
					continue
				}
				if next := componentOf[edge.Winner]; !visited[next] {
					visit(next)
				}
			}
		}
		order = append(order, components[c]...)
	}
	for _, node := range g.nodes {
		if c := componentOf[node.ID]; !visited[c] {
			visit(c)
		}
	}
	return order
}
