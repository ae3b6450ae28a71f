package report

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/alecthomas/diplan/internal/descriptor"
	"github.com/alecthomas/diplan/internal/diag"
	"github.com/alecthomas/diplan/internal/engine"
)

func analyse(t *testing.T) *engine.Result {
	t.Helper()
	set := &descriptor.Set{Services: []*descriptor.Service{
		{Type: "app.Logger", Lifetime: descriptor.Singleton},
		{
			Type:      "app.Cache",
			Lifetime:  descriptor.Singleton,
			Contracts: []descriptor.ContractID{"app.ICache"},
			Directives: descriptor.Directives{Guard: &descriptor.Guard{Conditions: []descriptor.Condition{
				{Kind: descriptor.EnvironmentEquals, Environments: []string{"Production"}},
			}}},
			Dependencies: []descriptor.Dependency{
				{Target: "app.Logger", Origin: descriptor.BulkDeclaration},
				{
					Target: "int",
					Origin: descriptor.ConfigurationBinding,
					Field:  "Size",
					Config: &descriptor.ConfigBinding{Key: "Cache:Size", Default: ptr("128")},
				},
			},
		},
	}}
	result, err := engine.Analyse(context.Background(), set)
	assert.NoError(t, err)
	return result
}

func ptr[T any](v T) *T { return &v }

func TestPlanText(t *testing.T) {
	result := analyse(t)
	w := &bytes.Buffer{}
	err := Plan(w, Text, result)
	assert.NoError(t, err)
	expected := `Registrations:
  direct(app.Logger, singleton)
  direct(app.Cache, singleton, when env == "Production")
  direct(app.ICache->app.Cache, singleton, when env == "Production")
  requires configuration and environment

Constructors:
  app.Cache(logger app.Logger, config Configuration)
    Size = config.Value("Cache:Size") ?? "128" int

0 errors, 0 warnings
`
	assert.Equal(t, expected, w.String())
}

func TestPlanTextEnvironment(t *testing.T) {
	result := analyse(t)
	w := &bytes.Buffer{}
	err := Plan(w, Text, result, WithEnvironment(descriptor.Environment{Name: "Development"}))
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(w.String(), "Registrations in Development:\n  direct(app.Logger, singleton)\n  requires"), "%s", w.String())
}

func TestPlanJSON(t *testing.T) {
	result := analyse(t)
	w := &bytes.Buffer{}
	err := Plan(w, JSON, result)
	assert.NoError(t, err)
	var doc struct {
		Registration struct {
			Entries []struct {
				Contract string `json:"contract"`
				Type     string `json:"type"`
				Lifetime string `json:"lifetime"`
				Guard    string `json:"guard"`
			} `json:"entries"`
			RequiresConfiguration bool `json:"requiresConfiguration"`
		} `json:"registration"`
		Injection []struct {
			Type string `json:"type"`
		} `json:"injection"`
		Diagnostics []any `json:"diagnostics"`
	}
	err = json.Unmarshal(w.Bytes(), &doc)
	assert.NoError(t, err)
	assert.Equal(t, 3, len(doc.Registration.Entries))
	assert.Equal(t, "app.ICache", doc.Registration.Entries[2].Contract)
	assert.Equal(t, "singleton", doc.Registration.Entries[2].Lifetime)
	assert.Equal(t, `env == "Production"`, doc.Registration.Entries[2].Guard)
	assert.True(t, doc.Registration.RequiresConfiguration)
	assert.Equal(t, 1, len(doc.Injection))
	assert.Equal(t, "app.Cache", doc.Injection[0].Type)
}

func TestPlanYAMLAndRepr(t *testing.T) {
	result := analyse(t)
	w := &bytes.Buffer{}
	err := Plan(w, YAML, result)
	assert.NoError(t, err)
	assert.Contains(t, w.String(), "lifetime: singleton")
	assert.Contains(t, w.String(), "requires-configuration: true")

	w.Reset()
	err = Plan(w, Repr, result)
	assert.NoError(t, err)
	assert.Contains(t, w.String(), "report.PlanDocument")
}

func TestDiagnosticsText(t *testing.T) {
	diagnostics := diag.Set{
		diag.New(diag.CycleDetected, []descriptor.TypeID{"app.A", "app.B"}, "app.A and app.B"),
		diag.New(diag.CaptiveDependency, []descriptor.TypeID{"app.Cache", "app.Repo"}, "app.Cache", "app.Repo"),
	}
	w := &bytes.Buffer{}
	err := Diagnostics(w, Text, diagnostics)
	assert.NoError(t, err)
	expected := `
Diagnostics:
  DI001 warning: dependency cycle between app.A and app.B
  DI002 error: singleton app.Cache depends on scoped app.Repo

1 error, 1 warning
`
	assert.Equal(t, expected, w.String())

	w.Reset()
	err = Diagnostics(w, JSON, nil)
	assert.NoError(t, err)
	assert.Equal(t, "[]\n", w.String())
}

func TestGraphText(t *testing.T) {
	result := analyse(t)
	w := &bytes.Buffer{}
	err := Graph(w, Text, result.Graph)
	assert.NoError(t, err)
	assert.Equal(t, "app.Cache\n  -> app.Logger: app.Logger\n", w.String())
}

func TestFormat(t *testing.T) {
	var f Format
	assert.NoError(t, f.UnmarshalText([]byte("YAML")))
	assert.Equal(t, YAML, f)
	assert.EqualError(t, f.UnmarshalText([]byte("xml")), `unknown format "xml", expected one of text, json, yaml, repr`)
}
