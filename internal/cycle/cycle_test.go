package cycle

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/alecthomas/diplan/internal/depgraph"
	"github.com/alecthomas/diplan/internal/descriptor"
	"github.com/alecthomas/diplan/internal/diag"
)

func single(targets ...descriptor.ContractID) []descriptor.Dependency {
	out := make([]descriptor.Dependency, len(targets))
	for i, target := range targets {
		out[i] = descriptor.Dependency{Target: target, Origin: descriptor.FieldMarker, Field: string(target), Order: i}
	}
	return out
}

func detect(t *testing.T, policy ExternalPolicy, services ...*descriptor.Service) (diag.Set, []Cycle) {
	t.Helper()
	g, err := depgraph.Build(context.Background(), &descriptor.Set{Services: services})
	assert.NoError(t, err)
	sink := diag.NewSink()
	cycles, err := Detect(context.Background(), g, policy, sink)
	assert.NoError(t, err)
	return sink.Diagnostics(), cycles
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		policy   ExternalPolicy
		services []*descriptor.Service
		messages []string
	}{
		{
			name: "Acyclic",
			services: []*descriptor.Service{
				{Type: "A", Dependencies: single("B", "C")},
				{Type: "B", Dependencies: single("C")},
				{Type: "C"},
			},
		},
		{
			name: "TwoNodeCycle",
			services: []*descriptor.Service{
				{Type: "A", Lifetime: descriptor.Scoped, Dependencies: single("B")},
				{Type: "B", Lifetime: descriptor.Scoped, Dependencies: single("A")},
			},
			messages: []string{"dependency cycle between A and B"},
		},
		{
			name: "ThreeNodeCycleAndSeparateSelfLoop",
			services: []*descriptor.Service{
				{Type: "A", Dependencies: single("B")},
				{Type: "B", Dependencies: single("C")},
				{Type: "C", Dependencies: single("A")},
				{Type: "D", Contracts: []descriptor.ContractID{"IX", "IY"}, Dependencies: single("IY")},
			},
			messages: []string{"dependency cycle between A, B and C", "dependency cycle between D"},
		},
		{
			name: "CollectionEdgesIgnored",
			services: []*descriptor.Service{
				{Type: "A", Contracts: []descriptor.ContractID{"IPlugin"}, Dependencies: []descriptor.Dependency{
					{Target: "IPlugin", Cardinality: descriptor.Collection, Field: "plugins"},
				}},
				{Type: "B", Dependencies: []descriptor.Dependency{
					{Target: "C", Cardinality: descriptor.Collection, Field: "cs"},
				}},
				{Type: "C", Dependencies: single("B")},
			},
		},
		{
			name: "ExternalTraverse",
			services: []*descriptor.Service{
				{Type: "A", Dependencies: single("B")},
				{Type: "B", External: true, Dependencies: single("A")},
			},
			messages: []string{"dependency cycle between A and B"},
		},
		{
			name:   "ExternalBoundary",
			policy: Boundary,
			services: []*descriptor.Service{
				{Type: "A", Dependencies: single("B")},
				{Type: "B", External: true, Dependencies: single("A")},
				{Type: "C", Dependencies: single("D")},
				{Type: "D", Dependencies: single("C")},
			},
			messages: []string{"dependency cycle between C and D"},
		},
		{
			name:   "ExternalSuppress",
			policy: Suppress,
			services: []*descriptor.Service{
				{Type: "A", Dependencies: single("B")},
				{Type: "B", External: true, Dependencies: single("A")},
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			diagnostics, cycles := detect(t, test.policy, test.services...)
			var messages []string
			for _, d := range diagnostics {
				assert.Equal(t, diag.Code("DI001"), d.Code)
				assert.Equal(t, diag.Warning, d.Severity)
				messages = append(messages, d.Message)
			}
			assert.Equal(t, test.messages, messages)
			assert.Equal(t, len(test.messages), len(cycles))
		})
	}
}

func TestCycleNamesEveryParticipant(t *testing.T) {
	diagnostics, _ := detect(t, Traverse,
		&descriptor.Service{Type: "A", Dependencies: single("B")},
		&descriptor.Service{Type: "B", Dependencies: single("A")},
	)
	assert.Equal(t, 1, len(diagnostics))
	assert.Equal(t, []descriptor.TypeID{"A", "B"}, diagnostics[0].Types)
}

func TestExternalPolicyText(t *testing.T) {
	var policy ExternalPolicy
	assert.NoError(t, policy.UnmarshalText([]byte("Boundary")))
	assert.Equal(t, Boundary, policy)
	assert.Error(t, policy.UnmarshalText([]byte("ignore")))
}
