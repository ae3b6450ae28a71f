package inject

import (
	"path"
	"slices"
	"strings"

	"github.com/alecthomas/diplan/internal/depgraph"
	"github.com/alecthomas/diplan/internal/descriptor"
)

// Category of a configuration-bound type.
type Category int

const (
	// Scalar types bind with a keyed value lookup.
	Scalar Category = iota
	// Complex object types bind with a section lookup.
	Complex
	// Collection types bind with a section lookup.
	Collection
	// OptionsWrapper types are supplied by the registry's options subsystem.
	OptionsWrapper
)

var categoryNames = []string{"scalar", "complex", "collection", "options"}

func (c Category) String() string { return categoryNames[c] }

// OptionsVariant is the flavour of an options wrapper.
type OptionsVariant int

const (
	NotOptions OptionsVariant = iota
	// StaticOptions is read once for the lifetime of the application.
	StaticOptions
	// SnapshotOptions is re-read once per scope.
	SnapshotOptions
	// MonitorOptions notifies on change.
	MonitorOptions
)

var optionsNames = []string{"", "static", "snapshot", "monitor"}

func (o OptionsVariant) String() string { return optionsNames[o] }

func (o OptionsVariant) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Class is the classification of a configuration-bound type.
type Class struct {
	Category Category
	Options  OptionsVariant
	Nullable bool
	// Element is the element type of a collection.
	Element string
}

// Classifier classifies the target type of a configuration binding.
type Classifier func(target descriptor.ContractID) Class

var (
	scalarTypes = []string{
		"bool", "string", "byte", "rune",
		"int", "int8", "int16", "int32", "int64",
		"uint", "uint8", "uint16", "uint32", "uint64", "uintptr",
		"float32", "float64", "complex64", "complex128",
		"time.Duration", "time.Time", "uuid.UUID", "url.URL", "netip.Addr", "big.Int", "big.Float",
		"Boolean", "String", "Char", "Byte", "SByte", "Int16", "Int32", "Int64", "UInt16", "UInt32", "UInt64",
		"Single", "Double", "Decimal", "TimeSpan", "Guid", "Uri", "DateTime", "DateTimeOffset", "DateOnly", "TimeOnly",
	}
	optionsTypes = map[string]OptionsVariant{
		"Options":          StaticOptions,
		"IOptions":         StaticOptions,
		"OptionsSnapshot":  SnapshotOptions,
		"IOptionsSnapshot": SnapshotOptions,
		"OptionsMonitor":   MonitorOptions,
		"IOptionsMonitor":  MonitorOptions,
	}
	collectionTypes = []string{
		"List", "IList", "IEnumerable", "ICollection", "IReadOnlyList", "IReadOnlyCollection",
		"Dictionary", "IDictionary", "IReadOnlyDictionary", "HashSet", "ISet", "Set", "Map",
	}
)

// DefaultClassifier classifies Go and common cross-language type names.
func DefaultClassifier(target descriptor.ContractID) Class {
	name := string(target)
	class := Class{}
	if rest, ok := strings.CutPrefix(name, "*"); ok {
		name, class.Nullable = rest, true
	}
	if rest, ok := strings.CutSuffix(name, "?"); ok {
		name, class.Nullable = rest, true
	}

	switch {
	case strings.HasPrefix(name, "[]"):
		class.Category = Collection
		class.Element = strings.TrimPrefix(name, "[]")
		return class
	case strings.HasPrefix(name, "map["):
		class.Category = Collection
		if end := closingBracket(name, len("map")); end > 0 {
			class.Element = name[end+1:]
		}
		return class
	case strings.HasSuffix(name, "[]"):
		class.Category = Collection
		class.Element = strings.TrimSuffix(name, "[]")
		return class
	}

	local := localName(depgraph.GenericName(name))
	if variant, ok := optionsTypes[local]; ok && strings.Contains(name, "[") {
		class.Category = OptionsWrapper
		class.Options = variant
		return class
	}
	if slices.Contains(collectionTypes, local) && strings.Contains(name, "[") {
		class.Category = Collection
		if args := typeArgs(name); len(args) > 0 {
			class.Element = args[len(args)-1]
		}
		return class
	}
	if slices.Contains(scalarTypes, qualifiedName(name)) {
		class.Category = Scalar
		return class
	}
	class.Category = Complex
	return class
}

// closingBracket returns the index of the "]" matching the "[" at open.
func closingBracket(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func typeArgs(s string) []string {
	open := strings.IndexByte(s, '[')
	if open < 0 {
		return nil
	}
	end := closingBracket(s, open)
	if end < 0 {
		return nil
	}
	var out []string
	depth, start := 0, open+1
	for i := open + 1; i < end; i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:end]))
}

// localName strips the package path and qualifier, eg. "github.com/a/b.Settings" becomes "Settings".
func localName(s string) string {
	s = strings.TrimLeft(s, "*[]")
	s = depgraph.GenericName(s)
	s = path.Base(s)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	return s
}

// qualifiedName strips the package path but keeps the qualifier, eg. "github.com/google/uuid.UUID" becomes
// "uuid.UUID".
func qualifiedName(s string) string {
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}
