package engine

import (
	"context"
	"slices"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/alecthomas/diplan/internal/descriptor"
	"github.com/alecthomas/diplan/internal/diag"
	"github.com/alecthomas/diplan/internal/inject"
	"github.com/alecthomas/diplan/internal/lifetime"
	"github.com/alecthomas/diplan/internal/logtest"
)

func bulk(target descriptor.ContractID, order int) descriptor.Dependency {
	return descriptor.Dependency{Target: target, Origin: descriptor.BulkDeclaration, Order: order}
}

func fixture() *descriptor.Set {
	return &descriptor.Set{Services: []*descriptor.Service{
		{
			Type:         "app.Repo",
			Lifetime:     descriptor.Scoped,
			Contracts:    []descriptor.ContractID{"app.IRepo"},
			Dependencies: []descriptor.Dependency{bulk("app.IMissing", 0)},
		},
		{
			Type:         "app.Cache",
			Lifetime:     descriptor.Singleton,
			Contracts:    []descriptor.ContractID{"app.ICache"},
			Dependencies: []descriptor.Dependency{bulk("app.IRepo", 0)},
		},
		{Type: "app.A", Contracts: []descriptor.ContractID{"app.IA"}, Dependencies: []descriptor.Dependency{bulk("app.IB", 0)}},
		{Type: "app.B", Contracts: []descriptor.ContractID{"app.IB"}, Dependencies: []descriptor.Dependency{bulk("app.IA", 0)}},
		{Type: "app.Bad", Directives: descriptor.Directives{Skip: []descriptor.ContractID{""}}},
		{Type: "app.Cache"},
		{Type: "app.Child", Base: "app.Unknown"},
		{Type: "app.Ext", External: true, Dependencies: []descriptor.Dependency{bulk("app.INothing", 0)}},
	}}
}

func codes(diagnostics diag.Set) []diag.Code {
	out := []diag.Code{}
	for _, d := range diagnostics {
		if !slices.Contains(out, d.Code) {
			out = append(out, d.Code)
		}
	}
	slices.Sort(out)
	return out
}

func TestAnalyse(t *testing.T) {
	result, err := Analyse(context.Background(), fixture())
	assert.NoError(t, err)

	assert.Equal(t, []diag.Code{"DI001", "DI002", "DI006", "DI007", "DI009", "DI010"}, codes(result.Diagnostics))
	assert.True(t, result.Diagnostics.HasErrors())
	assert.Equal(t, []descriptor.TypeID{"app.Bad"}, result.Excluded)
	assert.Equal(t, 1, len(result.Cycles))
	assert.Equal(t, 1, len(result.Violations))

	for _, entry := range result.Registration.Entries {
		assert.NotEqual(t, descriptor.TypeID("app.Bad"), entry.Type)
	}
	_, ok := result.Injection.Lookup("app.Bad")
	assert.False(t, ok)
	_, ok = result.Injection.Lookup("app.Cache")
	assert.True(t, ok)

	unresolved := result.Diagnostics.WithCode(diag.UnresolvableDependency.Code)
	assert.Equal(t, 1, len(unresolved))
	assert.True(t, unresolved[0].Involves("app.Repo"))
}

func TestAnalyseParallelMatchesSequential(t *testing.T) {
	ctx := context.Background()
	sequential, err := Analyse(ctx, fixture())
	assert.NoError(t, err)
	parallel, err := Analyse(ctx, fixture(), WithParallel(true))
	assert.NoError(t, err)
	assert.Equal(t, sequential.Diagnostics, parallel.Diagnostics)
	assert.Equal(t, sequential.Registration, parallel.Registration)
	assert.Equal(t, sequential.Injection.List, parallel.Injection.List)
}

func TestAnalyseSubscriber(t *testing.T) {
	var seen []diag.Diagnostic
	result, err := Analyse(context.Background(), fixture(), WithSubscriber(func(d diag.Diagnostic) {
		seen = append(seen, d)
	}))
	assert.NoError(t, err)
	assert.Equal(t, len(result.Diagnostics), len(seen))
}

func TestAnalyseLifetimePolicy(t *testing.T) {
	set := &descriptor.Set{Services: []*descriptor.Service{
		{Type: "app.Clock"},
	}}
	result, err := Analyse(context.Background(), set, WithLifetimePolicy(lifetime.DefaultSingleton))
	assert.NoError(t, err)
	assert.Equal(t, []string{"direct(app.Clock, singleton)"}, entryStrings(result))
	assert.Equal(t, 0, len(result.Diagnostics))
}

func TestAnalyseRequiresConfiguration(t *testing.T) {
	set := &descriptor.Set{Services: []*descriptor.Service{
		{Type: "app.Server", Dependencies: []descriptor.Dependency{{
			Target: "int",
			Origin: descriptor.ConfigurationBinding,
			Field:  "Port",
			Config: &descriptor.ConfigBinding{},
		}}},
	}}
	result, err := Analyse(context.Background(), set)
	assert.NoError(t, err)
	assert.True(t, result.Registration.RequiresConfiguration)
	plan, ok := result.Injection.Lookup("app.Server")
	assert.True(t, ok)
	assert.Equal(t, "config", plan.ConfigurationParameter)
}

func TestAnalyseClassifier(t *testing.T) {
	set := &descriptor.Set{Services: []*descriptor.Service{
		{Type: "app.Server", Dependencies: []descriptor.Dependency{{
			Target: "app.Port",
			Origin: descriptor.ConfigurationBinding,
			Field:  "Port",
			Config: &descriptor.ConfigBinding{},
		}}},
	}}
	scalar := func(descriptor.ContractID) inject.Class { return inject.Class{Category: inject.Scalar} }
	result, err := Analyse(context.Background(), set, WithClassifier(scalar))
	assert.NoError(t, err)
	plan, ok := result.Injection.Lookup("app.Server")
	assert.True(t, ok)
	assert.Equal(t, inject.ValueLookup, plan.Fields[0].Config.Kind)
}

func TestAnalyseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Analyse(ctx, fixture())
	assert.Error(t, err)
}

func TestAnalyseLogsDiagnostics(t *testing.T) {
	logger, logged := logtest.Capture()
	_, err := Analyse(context.Background(), fixture(), WithLogger(logger))
	assert.NoError(t, err)
	assert.Contains(t, logged(), "msg=\"Built dependency graph\" services=7")
	assert.Contains(t, logged(), "code=DI006")
	assert.Contains(t, logged(), "msg=\"Analysis complete\"")
}

func TestAnalyseInvalidOption(t *testing.T) {
	_, err := Analyse(context.Background(), fixture(), WithLogger(nil))
	assert.EqualError(t, err, "logger must not be nil")
}

func entryStrings(result *Result) []string {
	out := []string{}
	for _, entry := range result.Registration.Entries {
		out = append(out, entry.String())
	}
	return out
}
