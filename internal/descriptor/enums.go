package descriptor

import (
	"strings"

	"github.com/alecthomas/errors"
)

// Lifetime of a registered service.
type Lifetime int

const (
	// Unspecified lifetimes are inferred by policy before validation.
	Unspecified Lifetime = iota
	Singleton
	Scoped
	Transient
)

var lifetimeNames = []string{"unspecified", "singleton", "scoped", "transient"}

func (l Lifetime) String() string { return enumString(lifetimeNames, int(l)) }

func (l Lifetime) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Lifetime) UnmarshalText(text []byte) error {
	v, err := enumParse("lifetime", lifetimeNames, string(text))
	*l = Lifetime(v)
	return err
}

// Cardinality of a dependency edge.
type Cardinality int

const (
	// Single edges are resolved eagerly at construction time.
	Single Cardinality = iota
	// Collection edges are resolved lazily by the registry, to all matching services.
	Collection
)

var cardinalityNames = []string{"single", "collection"}

func (c Cardinality) String() string { return enumString(cardinalityNames, int(c)) }

func (c Cardinality) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Cardinality) UnmarshalText(text []byte) error {
	v, err := enumParse("cardinality", cardinalityNames, string(text))
	*c = Cardinality(v)
	return err
}

// Origin of a dependency edge.
type Origin int

const (
	FieldMarker Origin = iota
	BulkDeclaration
	ConfigurationBinding
)

var originNames = []string{"field", "bulk", "config"}

func (o Origin) String() string { return enumString(originNames, int(o)) }

func (o Origin) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Origin) UnmarshalText(text []byte) error {
	v, err := enumParse("origin", originNames, string(text))
	*o = Origin(v)
	return err
}

// FanOutMode controls which of the concrete type and its contracts are registered.
type FanOutMode int

const (
	// All registers the concrete type and every implemented contract.
	All FanOutMode = iota
	// DirectOnly registers the concrete type only.
	DirectOnly
	// Exclusionary registers the implemented contracts only.
	Exclusionary
)

var fanOutNames = []string{"all", "direct-only", "exclusionary"}

func (m FanOutMode) String() string { return enumString(fanOutNames, int(m)) }

func (m FanOutMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *FanOutMode) UnmarshalText(text []byte) error {
	v, err := enumParse("fan-out mode", fanOutNames, string(text))
	*m = FanOutMode(v)
	return err
}

// InstanceSharing controls whether the contracts of one service resolve to the same instance.
type InstanceSharing int

const (
	Separate InstanceSharing = iota
	Shared
)

var sharingNames = []string{"separate", "shared"}

func (s InstanceSharing) String() string { return enumString(sharingNames, int(s)) }

func (s InstanceSharing) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *InstanceSharing) UnmarshalText(text []byte) error {
	v, err := enumParse("instance sharing", sharingNames, string(text))
	*s = InstanceSharing(v)
	return err
}

// ParseLifetime parses a lifetime name, case insensitively.
func ParseLifetime(s string) (Lifetime, error) {
	var l Lifetime
	err := l.UnmarshalText([]byte(s))
	return l, err
}

// ParseFanOutMode parses a fan-out mode name, case insensitively.
func ParseFanOutMode(s string) (FanOutMode, error) {
	var m FanOutMode
	err := m.UnmarshalText([]byte(s))
	return m, err
}

// ParseInstanceSharing parses an instance sharing name, case insensitively.
func ParseInstanceSharing(s string) (InstanceSharing, error) {
	var v InstanceSharing
	err := v.UnmarshalText([]byte(s))
	return v, err
}

func enumString(names []string, v int) string {
	if v < 0 || v >= len(names) {
		return "invalid"
	}
	return names[v]
}

func enumParse(kind string, names []string, s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range names {
		if s == name || s == strings.ReplaceAll(name, "-", "") {
			return i, nil
		}
	}
	return 0, errors.Errorf("invalid %s %q, expected one of %s", kind, s, strings.Join(names, ", "))
}
