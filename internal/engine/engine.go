// Package engine runs every analysis pass over a descriptor set.
package engine

import (
	"context"
	"io"
	"log/slog"

	"github.com/alecthomas/errors"
	"golang.org/x/sync/errgroup"

	"github.com/alecthomas/diplan/internal/cycle"
	"github.com/alecthomas/diplan/internal/depgraph"
	"github.com/alecthomas/diplan/internal/descriptor"
	"github.com/alecthomas/diplan/internal/diag"
	"github.com/alecthomas/diplan/internal/inject"
	"github.com/alecthomas/diplan/internal/lifetime"
	"github.com/alecthomas/diplan/internal/planner"
)

// Result of an analysis.
type Result struct {
	Graph        *depgraph.Graph
	Lifetimes    lifetime.Lifetimes
	Cycles       []cycle.Cycle
	Violations   []lifetime.Violation
	Registration *planner.Plan
	Injection    *inject.Plans
	Diagnostics  diag.Set
	// Excluded are the structurally invalid services left out of the plans.
	Excluded []descriptor.TypeID
}

type engineOptions struct {
	logger         *slog.Logger
	lifetimePolicy lifetime.Policy
	externalPolicy cycle.ExternalPolicy
	parallel       bool
	classifier     inject.Classifier
	subscribers    []func(diag.Diagnostic)
}

type Option func(*engineOptions) error

// WithLogger sets the logger. Diagnostics are logged at debug level as they are reported.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) error {
		if logger == nil {
			return errors.Errorf("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithLifetimePolicy sets how unspecified lifetimes are inferred.
func WithLifetimePolicy(policy lifetime.Policy) Option {
	return func(o *engineOptions) error {
		o.lifetimePolicy = policy
		return nil
	}
}

// WithExternalPolicy sets how external services take part in cycle detection.
func WithExternalPolicy(policy cycle.ExternalPolicy) Option {
	return func(o *engineOptions) error {
		o.externalPolicy = policy
		return nil
	}
}

// WithParallel runs the cycle, lifetime, planning and synthesis passes concurrently.
func WithParallel(enable bool) Option {
	return func(o *engineOptions) error {
		o.parallel = enable
		return nil
	}
}

// WithClassifier overrides how configuration-bound types are classified.
func WithClassifier(classifier inject.Classifier) Option {
	return func(o *engineOptions) error {
		if classifier == nil {
			return errors.Errorf("classifier must not be nil")
		}
		o.classifier = classifier
		return nil
	}
}

// WithSubscriber is called for every diagnostic as it is reported.
func WithSubscriber(fn func(diag.Diagnostic)) Option {
	return func(o *engineOptions) error {
		o.subscribers = append(o.subscribers, fn)
		return nil
	}
}

// WithOptions applies a group of options.
func WithOptions(options ...Option) Option {
	return func(o *engineOptions) error {
		for _, opt := range options {
			if err := opt(o); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}
}

// Analyse the descriptor set, returning the plans and every diagnostic found.
//
// An error is only returned if the context is cancelled or the set can not be interpreted at all. Findings about the
// set itself are diagnostics in the result.
func Analyse(ctx context.Context, set *descriptor.Set, options ...Option) (*Result, error) {
	opts := &engineOptions{
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		classifier: inject.DefaultClassifier,
	}
	for _, option := range options {
		if err := option(opts); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	logger := opts.logger

	g, err := depgraph.Build(ctx, set, depgraph.WithLogger(logger))
	if err != nil {
		return nil, errors.Errorf("failed to build graph: %w", err)
	}
	logger.Debug("Built dependency graph", "services", g.Len())

	sink := diag.NewSink()
	sink.Subscribe(func(d diag.Diagnostic) {
		logger.Debug("Diagnostic", "code", d.Code, "severity", d.Severity, "message", d.Message)
	})
	for _, fn := range opts.subscribers {
		sink.Subscribe(fn)
	}

	excluded, err := validateStructure(ctx, g, sink)
	if err != nil {
		return nil, err
	}
	if err := checkResolvable(ctx, g, sink); err != nil {
		return nil, err
	}

	lifetimes, err := lifetime.Infer(ctx, g, opts.lifetimePolicy)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	result := &Result{Graph: g, Lifetimes: lifetimes}
	excludedIDs := make([]depgraph.NodeID, 0, len(excluded))
	for _, id := range excluded {
		excludedIDs = append(excludedIDs, id)
		result.Excluded = append(result.Excluded, g.Node(id).Service.Type)
	}

	passes := []func(ctx context.Context) error{
		func(ctx context.Context) (err error) {
			result.Cycles, err = cycle.Detect(ctx, g, opts.externalPolicy, sink)
			return errors.WithStack(err)
		},
		func(ctx context.Context) (err error) {
			result.Violations, err = lifetime.Validate(ctx, g, lifetimes, sink)
			return errors.WithStack(err)
		},
		func(ctx context.Context) (err error) {
			result.Registration, err = planner.Build(ctx, g, lifetimes, sink,
				planner.Exclude(excludedIDs...), planner.WithLogger(logger))
			return errors.WithStack(err)
		},
		func(ctx context.Context) (err error) {
			result.Injection, err = inject.Synthesize(ctx, g,
				inject.Exclude(excludedIDs...), inject.WithClassifier(opts.classifier))
			return errors.WithStack(err)
		},
	}
	if opts.parallel {
		wg, ctx := errgroup.WithContext(ctx)
		for _, pass := range passes {
			wg.Go(func() error { return pass(ctx) })
		}
		if err := wg.Wait(); err != nil {
			return nil, err
		}
	} else {
		for _, pass := range passes {
			if err := pass(ctx); err != nil {
				return nil, err
			}
		}
	}

	for _, plan := range result.Injection.List {
		if plan.ConfigurationParameter == "" {
			continue
		}
		if node, ok := g.Lookup(plan.Type); ok && node.Service.Registrable() {
			result.Registration.RequiresConfiguration = true
			break
		}
	}

	result.Diagnostics = sink.Diagnostics()
	errs, warnings := result.Diagnostics.Count()
	logger.Debug("Analysis complete", "entries", len(result.Registration.Entries),
		"constructors", len(result.Injection.List), "errors", errs, "warnings", warnings)
	return result, nil
}
