// Package diag defines the coded diagnostics produced by the analysis passes and a sink that accumulates them.
package diag

import (
	"cmp"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"sync"

	"github.com/alecthomas/diplan/internal/descriptor"
)

// Severity of a diagnostic.
type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Code is a stable diagnostic code, eg. "DI002".
type Code string

// Kind describes a class of diagnostic.
type Kind struct {
	Code     Code
	Name     string
	Severity Severity
	// Template is a fmt format string for the message.
	Template string
}

var (
	CycleDetected            = Kind{"DI001", "cycle-detected", Warning, "dependency cycle between %s"}
	CaptiveDependency        = Kind{"DI002", "captive-dependency", Error, "singleton %s depends on scoped %s"}
	CaptiveTransient         = Kind{"DI003", "captive-transient", Warning, "singleton %s captures transient %s for its whole lifetime"}
	SkipTargetNotImplemented = Kind{"DI004", "skip-target-not-implemented", Warning, "%s skips %s, which it does not implement"}
	NoOpSkipDirective        = Kind{"DI005", "no-op-skip-directive", Warning, "%s skips %s but only registers its concrete type"}
	UnresolvableDependency   = Kind{"DI006", "unresolvable-dependency", Warning, "%s depends on %s, which no service provides"}
	InvalidDirective         = Kind{"DI007", "invalid-directive", Error, "%s has an invalid directive: %s"}
	UnsatisfiableGuard       = Kind{"DI008", "unsatisfiable-guard", Warning, "%s is never registered because its guard can not be satisfied: %s"}
	DuplicateDescriptor      = Kind{"DI009", "duplicate-descriptor", Error, "%s is declared more than once"}
	UnknownBaseType          = Kind{"DI010", "unknown-base-type", Warning, "%s has base type %s, which is not part of the analysis"}
)

// Kinds lists every diagnostic kind in code order.
var Kinds = []Kind{
	CycleDetected, CaptiveDependency, CaptiveTransient, SkipTargetNotImplemented, NoOpSkipDirective,
	UnresolvableDependency, InvalidDirective, UnsatisfiableGuard, DuplicateDescriptor, UnknownBaseType,
}

// KindForCode returns the Kind with the given code.
func KindForCode(code Code) (Kind, bool) {
	for _, kind := range Kinds {
		if kind.Code == code {
			return kind, true
		}
	}
	return Kind{}, false
}

// Diagnostic is a single finding.
type Diagnostic struct {
	Code     Code                `json:"code" yaml:"code"`
	Name     string              `json:"name" yaml:"name"`
	Severity Severity            `json:"severity" yaml:"severity"`
	Message  string              `json:"message" yaml:"message"`
	Types    []descriptor.TypeID `json:"types" yaml:"types"`
}

// New creates a diagnostic of the given kind, involving types, with the message formatted from args.
func New(kind Kind, types []descriptor.TypeID, args ...any) Diagnostic {
	return Diagnostic{
		Code:     kind.Code,
		Name:     kind.Name,
		Severity: kind.Severity,
		Message:  fmt.Sprintf(kind.Template, args...),
		Types:    slices.Clone(types),
	}
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s: %s", d.Code, d.Severity, d.Message)
}

// Fingerprint is a stable identity for the diagnostic across runs.
func (d Diagnostic) Fingerprint() string {
	h := fnv.New64a()
	h.Write([]byte(d.Code))
	for _, t := range d.Types {
		h.Write([]byte{0})
		h.Write([]byte(t))
	}
	h.Write([]byte{0})
	h.Write([]byte(d.Message))
	return fmt.Sprintf("%s-%016x", d.Code, h.Sum64())
}

// Involves returns true if the diagnostic names the type.
func (d Diagnostic) Involves(id descriptor.TypeID) bool {
	return slices.Contains(d.Types, id)
}

// Set is an ordered collection of diagnostics.
type Set []Diagnostic

// HasErrors returns true if any diagnostic is an error.
func (s Set) HasErrors() bool {
	return slices.ContainsFunc(s, func(d Diagnostic) bool { return d.Severity == Error })
}

// Filter returns the diagnostics matching the predicate.
func (s Set) Filter(fn func(Diagnostic) bool) Set {
	var out Set
	for _, d := range s {
		if fn(d) {
			out = append(out, d)
		}
	}
	return out
}

// WithCode returns the diagnostics with the given code.
func (s Set) WithCode(code Code) Set {
	return s.Filter(func(d Diagnostic) bool { return d.Code == code })
}

// ForType returns the diagnostics that involve the type.
func (s Set) ForType(id descriptor.TypeID) Set {
	return s.Filter(func(d Diagnostic) bool { return d.Involves(id) })
}

// Count returns the number of errors and warnings.
func (s Set) Count() (errors, warnings int) {
	for _, d := range s {
		if d.Severity == Error {
			errors++
		} else {
			warnings++
		}
	}
	return
}

// Sort the set into its stable order: code, involved types, then message.
func (s Set) Sort() {
	slices.SortStableFunc(s, func(a, b Diagnostic) int {
		if c := cmp.Compare(a.Code, b.Code); c != 0 {
			return c
		}
		if c := slices.Compare(a.Types, b.Types); c != 0 {
			return c
		}
		return strings.Compare(a.Message, b.Message)
	})
}

// Sink accumulates diagnostics. It is safe for concurrent use.
//
// Identical diagnostics reported more than once are kept once.
type Sink struct {
	mu          sync.Mutex
	items       []Diagnostic
	seen        map[string]bool
	subscribers []func(Diagnostic)
}

// NewSink creates an empty Sink.
func NewSink() *Sink {
	return &Sink{seen: map[string]bool{}}
}

// Subscribe registers a function called for every new diagnostic.
//
// Subscribers are called with the sink locked, so must not report to the sink.
func (s *Sink) Subscribe(fn func(Diagnostic)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Report a diagnostic of the given kind.
func (s *Sink) Report(kind Kind, types []descriptor.TypeID, args ...any) {
	s.Append(New(kind, types, args...))
}

// Append diagnostics to the sink.
func (s *Sink) Append(diagnostics ...Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	for _, d := range diagnostics {
		key := d.Fingerprint()
		if s.seen[key] {
			continue
		}
		s.seen[key] = true
		s.items = append(s.items, d)
		for _, fn := range s.subscribers {
			fn(d)
		}
	}
}

// Len returns the number of diagnostics reported so far.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Diagnostics returns a sorted copy of the accumulated diagnostics.
func (s *Sink) Diagnostics() Set {
	s.mu.Lock()
	out := Set(slices.Clone(s.items))
	s.mu.Unlock()
	out.Sort()
	return out
}

// JoinTypes formats type IDs for a message, eg. "A, B and C".
func JoinTypes(types []descriptor.TypeID) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}
