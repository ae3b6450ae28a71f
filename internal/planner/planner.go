// Package planner computes the ordered registration plan of a dependency graph.
package planner

import (
	"context"
	"io"
	"log/slog"
	"slices"

	"github.com/alecthomas/errors"

	"github.com/alecthomas/diplan/internal/depgraph"
	"github.com/alecthomas/diplan/internal/descriptor"
	"github.com/alecthomas/diplan/internal/diag"
	"github.com/alecthomas/diplan/internal/lifetime"
)

// Kind of a registration entry.
type Kind int

const (
	// Direct entries construct the service.
	Direct Kind = iota
	// Indirect entries resolve another registration of the same service so that every contract shares one instance.
	Indirect
)

func (k Kind) String() string {
	if k == Indirect {
		return "indirect"
	}
	return "direct"
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Entry is a single registration.
type Entry struct {
	// Contract the entry registers, or "" for the concrete type.
	Contract descriptor.ContractID `json:"contract,omitempty" yaml:"contract,omitempty"`
	Type     descriptor.TypeID     `json:"type" yaml:"type"`
	Lifetime descriptor.Lifetime   `json:"lifetime" yaml:"lifetime"`
	// ExplicitLifetime is true if the service declared its lifetime.
	ExplicitLifetime bool                       `json:"explicitLifetime,omitempty" yaml:"explicit-lifetime,omitempty"`
	Guard            *descriptor.Guard          `json:"-" yaml:"-"`
	GuardExpr        string                     `json:"guard,omitempty" yaml:"guard,omitempty"`
	Sharing          descriptor.InstanceSharing `json:"sharing" yaml:"sharing"`
	Kind             Kind                       `json:"kind" yaml:"kind"`
	// Via is the registration an indirect entry resolves: the concrete type, or for exclusionary services the first
	// registered contract.
	Via descriptor.ContractID `json:"via,omitempty" yaml:"via,omitempty"`
}

// Key is what the entry registers: the contract, or the concrete type.
func (e Entry) Key() descriptor.ContractID {
	if e.Contract == "" {
		return descriptor.ContractID(e.Type)
	}
	return e.Contract
}

func (e Entry) String() string {
	out := e.Kind.String() + "(" + string(e.Key())
	if e.Kind == Indirect {
		out += "->" + string(e.Via)
	} else if e.Contract != "" {
		out += "->" + string(e.Type)
	}
	out += ", " + e.Lifetime.String()
	if e.GuardExpr != "" {
		out += ", when " + e.GuardExpr
	}
	return out + ")"
}

// Plan is the ordered list of registrations.
type Plan struct {
	Entries []Entry `json:"entries" yaml:"entries"`
	// RequiresConfiguration is true if any guard reads configuration or a registered constructor binds it.
	RequiresConfiguration bool `json:"requiresConfiguration" yaml:"requires-configuration"`
	// RequiresEnvironment is true if any guard reads the environment name.
	RequiresEnvironment bool `json:"requiresEnvironment" yaml:"requires-environment"`
}

// ForType returns the entries of a single service.
func (p *Plan) ForType(id descriptor.TypeID) []Entry {
	var out []Entry
	for _, entry := range p.Entries {
		if entry.Type == id {
			out = append(out, entry)
		}
	}
	return out
}

// Active returns the entries whose guards hold in the environment.
func (p *Plan) Active(env descriptor.Environment) []Entry {
	var out []Entry
	for _, entry := range p.Entries {
		if entry.Guard.Evaluate(env) {
			out = append(out, entry)
		}
	}
	return out
}

type planOptions struct {
	exclude map[depgraph.NodeID]bool
	logger  *slog.Logger
}

type Option func(*planOptions) error

// Exclude nodes from the plan.
func Exclude(ids ...depgraph.NodeID) Option {
	return func(o *planOptions) error {
		for _, id := range ids {
			o.exclude[id] = true
		}
		return nil
	}
}

// WithLogger logs each planned service at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(o *planOptions) error {
		if logger == nil {
			return errors.Errorf("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// Build the registration plan for every registrable node of the graph, in dependency order.
//
// Skip and guard findings are reported to the sink.
func Build(ctx context.Context, g *depgraph.Graph, lifetimes lifetime.Lifetimes, sink *diag.Sink, options ...Option) (*Plan, error) {
	opts := &planOptions{
		exclude: map[depgraph.NodeID]bool{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		if err := option(opts); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	plan := &Plan{Entries: []Entry{}}
	for _, id := range g.Order() {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		node := g.Node(id)
		if !node.Service.Registrable() || opts.exclude[id] {
			continue
		}
		entries := planService(node, lifetimes.Of(id), sink)
		opts.logger.Debug("Planned service", "type", node.Service.Type, "entries", len(entries))
		plan.Entries = append(plan.Entries, entries...)
		guard := node.Service.Directives.Guard
		if len(entries) > 0 {
			plan.RequiresConfiguration = plan.RequiresConfiguration || guard.UsesConfiguration()
			plan.RequiresEnvironment = plan.RequiresEnvironment || guard.UsesEnvironment()
		}
	}
	return plan, nil
}

func planService(node *depgraph.Node, lt descriptor.Lifetime, sink *diag.Sink) []Entry {
	svc := node.Service
	directives := svc.Directives
	types := []descriptor.TypeID{svc.Type}

	skip := map[descriptor.ContractID]bool{}
	if directives.FanOut == descriptor.DirectOnly {
		if len(directives.Skip) > 0 {
			sink.Report(diag.NoOpSkipDirective, types, svc.Type, joinContracts(directives.Skip))
		}
	} else {
		for _, contract := range directives.Skip {
			if !slices.Contains(node.Contracts, contract) {
				sink.Report(diag.SkipTargetNotImplemented, types, svc.Type, contract)
				continue
			}
			skip[contract] = true
		}
	}

	if guard := directives.Guard; guard != nil {
		for _, contradiction := range guard.Contradictions() {
			sink.Report(diag.UnsatisfiableGuard, types, svc.Type, contradiction)
		}
	}

	var contracts []descriptor.ContractID
	if directives.FanOut != descriptor.DirectOnly {
		for _, contract := range node.Contracts {
			// A concrete-type entry is never a contract entry.
			if !skip[contract] && contract != descriptor.ContractID(svc.Type) {
				contracts = append(contracts, contract)
			}
		}
	}
	concrete := directives.FanOut != descriptor.Exclusionary

	base := Entry{
		Type:             svc.Type,
		Lifetime:         lt,
		ExplicitLifetime: svc.Lifetime != descriptor.Unspecified,
		Guard:            directives.Guard,
		GuardExpr:        directives.Guard.String(),
		Sharing:          directives.Sharing,
		Kind:             Direct,
	}
	var entries []Entry
	if concrete {
		entries = append(entries, base)
	}
	switch directives.Sharing {
	case descriptor.Shared:
		via := descriptor.ContractID(svc.Type)
		if !concrete {
			if len(contracts) == 0 {
				return nil
			}
			anchor := base
			anchor.Contract = contracts[0]
			entries = append(entries, anchor)
			via = contracts[0]
			contracts = contracts[1:]
		}
		for _, contract := range contracts {
			entry := base
			entry.Contract = contract
			entry.Kind = Indirect
			entry.Via = via
			entries = append(entries, entry)
		}
	default:
		for _, contract := range contracts {
			entry := base
			entry.Contract = contract
			entries = append(entries, entry)
		}
	}
	return entries
}

func joinContracts(contracts []descriptor.ContractID) string {
	out := ""
	for i, contract := range contracts {
		if i > 0 {
			out += ", "
		}
		out += string(contract)
	}
	return out
}
