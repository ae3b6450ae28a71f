package descriptor

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/psanford/memfs"
)

func TestActiveDependenciesOrdering(t *testing.T) {
	svc := &Service{
		Type: "app.Handler",
		Dependencies: []Dependency{
			{Target: "app.Store", Origin: FieldMarker, Order: 2, Field: "store"},
			{Target: "app.Clock", Origin: BulkDeclaration, Order: 1},
			{Target: "int", Origin: ConfigurationBinding, Order: 1, Field: "timeout", Config: &ConfigBinding{}},
			{Target: "app.Logger", Origin: BulkDeclaration, Order: 0},
			{Target: "app.Shared", Origin: FieldMarker, Order: 0, Field: "shared", Static: true},
			{Target: "app.Base", Origin: FieldMarker, Order: 3, Field: "base", Abstract: true},
		},
	}
	targets := []ContractID{}
	for _, dep := range svc.ActiveDependencies() {
		targets = append(targets, dep.Target)
	}
	assert.Equal(t, []ContractID{"app.Logger", "app.Clock", "int", "app.Store"}, targets)
}

func TestRegistrable(t *testing.T) {
	assert.True(t, (&Service{}).Registrable())
	assert.False(t, (&Service{Abstract: true}).Registrable())
	assert.False(t, (&Service{Static: true}).Registrable())
}

func TestParseEnums(t *testing.T) {
	l, err := ParseLifetime("Singleton")
	assert.NoError(t, err)
	assert.Equal(t, Singleton, l)

	m, err := ParseFanOutMode("directonly")
	assert.NoError(t, err)
	assert.Equal(t, DirectOnly, m)

	m, err = ParseFanOutMode("direct-only")
	assert.NoError(t, err)
	assert.Equal(t, DirectOnly, m)

	s, err := ParseInstanceSharing("SHARED")
	assert.NoError(t, err)
	assert.Equal(t, Shared, s)

	_, err = ParseLifetime("forever")
	assert.EqualError(t, err, `invalid lifetime "forever", expected one of unspecified, singleton, scoped, transient`)
}

func TestGuardString(t *testing.T) {
	guard := &Guard{Conditions: []Condition{
		{Kind: EnvironmentEquals, Environments: []string{"Development", "Staging"}},
		{Kind: EnvironmentExcludes, Environments: []string{"Test"}},
		{Kind: ConfigKeyEquals, Key: "Cache:Enabled", Value: "true"},
		{Kind: ConfigKeyNotEquals, Key: "Mode", Value: "legacy"},
	}}
	assert.Equal(t,
		`env in ("Development", "Staging") && env != "Test" && config["Cache:Enabled"] == "true" && config["Mode"] != "legacy"`,
		guard.String())
	assert.True(t, guard.UsesConfiguration())
	assert.True(t, guard.UsesEnvironment())
	var nilGuard *Guard
	assert.Equal(t, "", nilGuard.String())
}

func TestGuardEvaluate(t *testing.T) {
	guard := &Guard{Conditions: []Condition{
		{Kind: EnvironmentEquals, Environments: []string{"Development", "Staging"}},
		{Kind: ConfigKeyEquals, Key: "Cache:Enabled", Value: "true"},
	}}
	tests := []struct {
		name     string
		env      Environment
		expected bool
	}{
		{"Match", Environment{Name: "staging", Config: map[string]string{"Cache:Enabled": "true"}}, true},
		{"WrongEnvironment", Environment{Name: "Production", Config: map[string]string{"Cache:Enabled": "true"}}, false},
		{"MissingKey", Environment{Name: "Development"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, guard.Evaluate(tt.env))
		})
	}
	var nilGuard *Guard
	assert.True(t, nilGuard.Evaluate(Environment{}))
}

func TestGuardContradictions(t *testing.T) {
	tests := []struct {
		name       string
		conditions []Condition
		expected   int
	}{
		{"EnvAndNotEnv", []Condition{
			{Kind: EnvironmentEquals, Environments: []string{"Production"}},
			{Kind: EnvironmentExcludes, Environments: []string{"production"}},
		}, 1},
		{"PartialExclusion", []Condition{
			{Kind: EnvironmentEquals, Environments: []string{"Production", "Staging"}},
			{Kind: EnvironmentExcludes, Environments: []string{"Production"}},
		}, 0},
		{"DisjointEnvironments", []Condition{
			{Kind: EnvironmentEquals, Environments: []string{"Production"}},
			{Kind: EnvironmentEquals, Environments: []string{"Staging"}},
		}, 1},
		{"ConfigEqualsAndNotEquals", []Condition{
			{Kind: ConfigKeyEquals, Key: "A", Value: "1"},
			{Kind: ConfigKeyNotEquals, Key: "A", Value: "1"},
		}, 1},
		{"ConfigTwoValues", []Condition{
			{Kind: ConfigKeyEquals, Key: "A", Value: "1"},
			{Kind: ConfigKeyEquals, Key: "A", Value: "2"},
		}, 1},
		{"Satisfiable", []Condition{
			{Kind: ConfigKeyEquals, Key: "A", Value: "1"},
			{Kind: ConfigKeyNotEquals, Key: "B", Value: "1"},
		}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := &Guard{Conditions: tt.conditions}
			assert.Equal(t, tt.expected, len(guard.Contradictions()))
		})
	}
}

func TestLoadManifest(t *testing.T) {
	fsys := memfs.New()
	err := fsys.WriteFile("services.yaml", []byte(`
contracts:
  - id: app.UserStore
    extends: [app.Store]
services:
  - type: app.Cache
    lifetime: singleton
    contracts: [app.UserStore, app.Notifier]
    directives:
      fan-out: all
      sharing: shared
      skip: [app.Notifier]
      guard:
        conditions:
          - kind: env
            environments: [Development]
    dependencies:
      - target: app.Clock
        origin: bulk
      - target: int
        origin: config
        field: timeout
        config:
          key: Database:Timeout
          default: "30"
`), 0600)
	assert.NoError(t, err)

	set, err := LoadFile(fsys, "services.yaml")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(set.Services))
	cache := set.Services[0]
	assert.Equal(t, Singleton, cache.Lifetime)
	assert.Equal(t, Shared, cache.Directives.Sharing)
	assert.Equal(t, []ContractID{"app.Notifier"}, cache.Directives.Skip)
	assert.Equal(t, `env == "Development"`, cache.Directives.Guard.String())
	assert.Equal(t, BulkDeclaration, cache.Dependencies[0].Origin)
	assert.Equal(t, "30", *cache.Dependencies[1].Config.Default)
	assert.Equal(t, []ContractID{"app.Store"}, set.Contracts[0].Extends)

	_, ok := set.Lookup("app.Cache")
	assert.True(t, ok)
}

func TestLoadManifestJSON(t *testing.T) {
	set, err := Load(strings.NewReader(`{"services": [{"type": "app.A", "lifetime": "scoped", "dependencies": [{"target": "app.B", "cardinality": "collection"}]}]}`))
	assert.NoError(t, err)
	assert.Equal(t, Scoped, set.Services[0].Lifetime)
	assert.Equal(t, Collection, set.Services[0].Dependencies[0].Cardinality)
}

func TestLoadManifestJSONFieldNames(t *testing.T) {
	def := "128"
	want := &Set{
		Services: []*Service{
			{
				Type:       "app.Repo[T]",
				TypeParams: []string{"T"},
				Contracts:  []ContractID{"app.IRepo[T]"},
				Lifetime:   Scoped,
				Directives: Directives{
					FanOut:  Exclusionary,
					Sharing: Shared,
					Guard:   &Guard{Conditions: []Condition{{Kind: EnvironmentEquals, Environments: []string{"Production"}}}},
				},
				Dependencies: []Dependency{
					{Target: "app.Handler", Cardinality: Collection, Origin: FieldMarker, Field: "Handlers", Order: 1},
					{Target: "int", Origin: ConfigurationBinding, Field: "Size", Config: &ConfigBinding{Key: "Cache:Size", Default: &def}},
				},
			},
		},
		Contracts: []Contract{{ID: "app.IRepo[T]", Extends: []ContractID{"app.IReader"}}},
	}
	data, err := json.Marshal(want)
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"typeParams"`)
	assert.Contains(t, string(data), `"fanOut":"exclusionary"`)

	got, err := Load(strings.NewReader(string(data)))
	assert.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Load(strings.NewReader(`{"services": [{"type": "app.A", "type-params": ["T"]}]}`))
	assert.Error(t, err)
}

func TestLoadManifestErrors(t *testing.T) {
	_, err := Load(strings.NewReader(`services: [{type: app.A, lifetime: forever}]`))
	assert.Error(t, err)

	_, err = Load(strings.NewReader(`services: [{type: app.A, lifespan: scoped}]`))
	assert.Error(t, err)

	_, err = Load(strings.NewReader(`services: [{lifetime: scoped}]`))
	assert.EqualError(t, err, "service 0 has no type")
}

func TestMarshalRoundTrip(t *testing.T) {
	set := &Set{Services: []*Service{{Type: "app.A", Lifetime: Transient, Directives: Directives{FanOut: Exclusionary}}}}
	data, err := Marshal(set)
	assert.NoError(t, err)
	assert.Contains(t, string(data), "lifetime: transient")
	assert.Contains(t, string(data), "fan-out: exclusionary")
	decoded, err := Load(strings.NewReader(string(data)))
	assert.NoError(t, err)
	assert.Equal(t, set, decoded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		service Service
		errors  []string
	}{
		{name: "Valid", service: Service{
			Type: "app.A",
			Dependencies: []Dependency{
				{Target: "app.B", Origin: BulkDeclaration},
				{Target: "app.C", Origin: FieldMarker, Field: "c"},
				{Target: "int", Origin: ConfigurationBinding, Field: "timeout", Config: &ConfigBinding{Key: "Timeout"}},
			},
			Directives: Directives{Guard: &Guard{Conditions: []Condition{{Kind: EnvironmentEquals, Environments: []string{"Dev"}}}}},
		}},
		{name: "SelfBase", service: Service{Type: "app.A", Base: "app.A"},
			errors: []string{"type can not be its own base"}},
		{name: "EmptyEnvironmentList", service: Service{
			Type:       "app.A",
			Directives: Directives{Guard: &Guard{Conditions: []Condition{{Kind: EnvironmentExcludes}}}},
		}, errors: []string{"not-env condition has no environment names"}},
		{name: "EmptyConfigKey", service: Service{
			Type:       "app.A",
			Directives: Directives{Guard: &Guard{Conditions: []Condition{{Kind: ConfigKeyEquals, Value: "x"}}}},
		}, errors: []string{"config-equals condition has no configuration key"}},
		{name: "ConfigWithoutField", service: Service{
			Type:         "app.A",
			Dependencies: []Dependency{{Target: "int", Origin: ConfigurationBinding}},
		}, errors: []string{"configuration binding for int has no field"}},
		{name: "DuplicateField", service: Service{
			Type: "app.A",
			Dependencies: []Dependency{
				{Target: "app.B", Origin: FieldMarker, Field: "b"},
				{Target: "app.C", Origin: FieldMarker, Field: "b"},
			},
		}, errors: []string{`field "b" is bound more than once`}},
		{name: "MissingTarget", service: Service{
			Type:         "app.A",
			Dependencies: []Dependency{{Origin: FieldMarker, Field: "b"}},
		}, errors: []string{`dependency "b" has no target`}},
		{name: "UnknownFanOut", service: Service{Type: "app.A", Directives: Directives{FanOut: FanOutMode(9)}},
			errors: []string{"unknown fan-out mode 9"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.errors, test.service.Validate())
		})
	}
}
