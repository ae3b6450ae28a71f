package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/alecthomas/diplan/internal/descriptor"
	"github.com/alecthomas/diplan/internal/diag"
	"github.com/alecthomas/diplan/internal/inject"
)

type text struct {
	w       io.Writer
	err     error
	heading *color.Color
	errorc  *color.Color
	warning *color.Color
	faint   *color.Color
}

func newText(w io.Writer, opts *reportOptions) *text {
	t := &text{
		w:       w,
		heading: color.New(color.Bold),
		errorc:  color.New(color.FgRed, color.Bold),
		warning: color.New(color.FgYellow, color.Bold),
		faint:   color.New(color.Faint),
	}
	for _, c := range []*color.Color{t.heading, t.errorc, t.warning, t.faint} {
		if opts.color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return t
}

func (t *text) printf(format string, args ...any) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

func (t *text) plan(doc *PlanDocument) {
	heading := "Registrations"
	if doc.Environment != "" {
		heading += " in " + doc.Environment
	}
	t.printf("%s:\n", t.heading.Sprint(heading))
	if len(doc.Registration.Entries) == 0 {
		t.printf("  %s\n", t.faint.Sprint("none"))
	}
	for _, entry := range doc.Registration.Entries {
		t.printf("  %s\n", entry)
	}
	var requires []string
	if doc.Registration.RequiresConfiguration {
		requires = append(requires, "configuration")
	}
	if doc.Registration.RequiresEnvironment {
		requires = append(requires, "environment")
	}
	if len(requires) > 0 {
		t.printf("  %s\n", t.faint.Sprint("requires "+strings.Join(requires, " and ")))
	}

	if len(doc.Injection) > 0 {
		t.printf("\n%s:\n", t.heading.Sprint("Constructors"))
	}
	for _, plan := range doc.Injection {
		t.constructor(plan)
	}
}

func (t *text) constructor(plan *inject.Plan) {
	params := make([]string, len(plan.Parameters))
	for i, param := range plan.Parameters {
		typ := param.Type
		switch param.Kind {
		case inject.CollectionBinding:
			typ = "[]" + typ
		case inject.OptionsBinding:
			typ = param.Options.String() + " " + typ
		}
		params[i] = param.Name + " " + typ
	}
	t.printf("  %s(%s)\n", plan.Type, strings.Join(params, ", "))
	if plan.Base != "" {
		t.printf("    base %s(%s)\n", plan.Base, strings.Join(plan.BaseArguments, ", "))
	}
	for _, field := range plan.Fields {
		if field.Config == nil {
			t.printf("    %s = %s\n", field.Field, field.Parameter)
			continue
		}
		lookup := fmt.Sprintf("%s.%s(%q)", field.Config.Parameter, lookupMethod(field.Config.Kind), field.Config.Key)
		if field.Config.Default != nil {
			lookup += fmt.Sprintf(" ?? %q", *field.Config.Default)
		}
		t.printf("    %s = %s %s\n", field.Field, lookup, t.faint.Sprint(field.Config.Type))
	}
}

func lookupMethod(kind inject.LookupKind) string {
	if kind == inject.SectionLookup {
		return "Section"
	}
	return "Value"
}

func (t *text) diagnostics(diagnostics diag.Set) {
	errs, warnings := diagnostics.Count()
	if len(diagnostics) > 0 {
		t.printf("\n%s:\n", t.heading.Sprint("Diagnostics"))
	}
	for _, d := range diagnostics {
		c := t.warning
		if d.Severity == diag.Error {
			c = t.errorc
		}
		t.printf("  %s %s\n", c.Sprintf("%s %s:", d.Code, d.Severity), d.Message)
	}
	t.printf("\n%s, %s\n", plural(errs, "error"), plural(warnings, "warning"))
}

func (t *text) graph(edges []GraphEdge) {
	last := ""
	for _, edge := range edges {
		if from := string(edge.From); from != last {
			t.printf("%s\n", t.heading.Sprint(from))
			last = from
		}
		target := string(edge.Target)
		if edge.Cardinality == descriptor.Collection {
			target = "[]" + target
		}
		resolved := make([]string, len(edge.Resolved))
		for i, r := range edge.Resolved {
			resolved[i] = string(r)
		}
		to := strings.Join(resolved, ", ")
		if to == "" {
			to = t.warning.Sprint("unresolved")
		}
		line := fmt.Sprintf("  -> %s: %s", target, to)
		if edge.InheritedFrom != "" {
			line += " " + t.faint.Sprintf("(from %s)", edge.InheritedFrom)
		}
		t.printf("%s\n", line)
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
