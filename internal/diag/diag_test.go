package diag

import (
	"sync"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/alecthomas/diplan/internal/descriptor"
)

func TestNew(t *testing.T) {
	d := New(CaptiveDependency, []descriptor.TypeID{"A", "B"}, "A", "B")
	assert.Equal(t, Code("DI002"), d.Code)
	assert.Equal(t, Error, d.Severity)
	assert.Equal(t, "singleton A depends on scoped B", d.Message)
	assert.Equal(t, "DI002 error: singleton A depends on scoped B", d.String())
	assert.True(t, d.Involves("B"))
	assert.False(t, d.Involves("C"))
}

func TestKindsAreUnique(t *testing.T) {
	seen := map[Code]bool{}
	for _, kind := range Kinds {
		assert.False(t, seen[kind.Code], "duplicate code %s", kind.Code)
		seen[kind.Code] = true
		found, ok := KindForCode(kind.Code)
		assert.True(t, ok)
		assert.Equal(t, kind.Name, found.Name)
	}
	_, ok := KindForCode("DI999")
	assert.False(t, ok)
}

func TestFingerprint(t *testing.T) {
	a := New(CycleDetected, []descriptor.TypeID{"A", "B"}, "A and B")
	b := New(CycleDetected, []descriptor.TypeID{"A", "B"}, "A and B")
	c := New(CycleDetected, []descriptor.TypeID{"A", "C"}, "A and C")
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.HasPrefix(t, a.Fingerprint(), "DI001-")
}

func TestSinkOrderingAndDedup(t *testing.T) {
	sink := NewSink()
	var seen []Code
	sink.Subscribe(func(d Diagnostic) { seen = append(seen, d.Code) })
	sink.Report(CaptiveTransient, []descriptor.TypeID{"Z", "Y"}, "Z", "Y")
	sink.Report(CycleDetected, []descriptor.TypeID{"B", "C"}, "B and C")
	sink.Report(CycleDetected, []descriptor.TypeID{"A", "B"}, "A and B")
	sink.Report(CycleDetected, []descriptor.TypeID{"A", "B"}, "A and B")
	assert.Equal(t, 3, sink.Len())
	assert.Equal(t, []Code{"DI003", "DI001", "DI001"}, seen)
	var codes []string
	for _, d := range sink.Diagnostics() {
		codes = append(codes, string(d.Code)+":"+string(d.Types[0]))
	}
	assert.Equal(t, []string{"DI001:A", "DI001:B", "DI003:Z"}, codes)
}

func TestSinkConcurrentAppend(t *testing.T) {
	sink := NewSink()
	wg := sync.WaitGroup{}
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := descriptor.TypeID(rune('A' + i%26))
			sink.Report(UnresolvableDependency, []descriptor.TypeID{id}, id, "X")
		}()
	}
	wg.Wait()
	assert.Equal(t, 26, sink.Len())
}

func TestSetHelpers(t *testing.T) {
	set := Set{
		New(CaptiveDependency, []descriptor.TypeID{"A", "B"}, "A", "B"),
		New(CaptiveTransient, []descriptor.TypeID{"A", "C"}, "A", "C"),
		New(CycleDetected, []descriptor.TypeID{"D", "E"}, "D and E"),
	}
	assert.True(t, set.HasErrors())
	assert.False(t, set[1:].HasErrors())
	errs, warns := set.Count()
	assert.Equal(t, 1, errs)
	assert.Equal(t, 2, warns)
	assert.Equal(t, 2, len(set.ForType("A")))
	assert.Equal(t, 1, len(set.WithCode("DI001")))
}

func TestJoinTypes(t *testing.T) {
	assert.Equal(t, "", JoinTypes(nil))
	assert.Equal(t, "A", JoinTypes([]descriptor.TypeID{"A"}))
	assert.Equal(t, "A and B", JoinTypes([]descriptor.TypeID{"A", "B"}))
	assert.Equal(t, "A, B and C", JoinTypes([]descriptor.TypeID{"A", "B", "C"}))
}
