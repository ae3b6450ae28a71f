// Package directiveparser implements a parser for diplan's source directives.
//
// Directives are line comments of the form "//di:<directive> ...", eg.
//
//	//di:service singleton mode=exclusionary sharing=shared skip=io.Closer
//	//di:when env=Development,Staging
//	//di:config key="Database:Timeout" default=30
package directiveparser

import (
	"strings"

	"github.com/alecthomas/errors"
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/alecthomas/diplan/internal/descriptor"
)

// Prefix of every directive comment, after the comment marker.
const Prefix = "di:"

var (
	annotationParser = participle.MustBuild[annotation](
		participle.Lexer(directiveLexer),
		participle.Union[Directive](
			&DirectiveService{}, &DirectiveAbstract{}, &DirectiveExternal{}, &DirectiveDepends{},
			&DirectiveInject{}, &DirectiveConfig{}, &DirectiveWhen{},
		),
		participle.Elide("Whitespace"),
		participle.Unquote("String"),
		participle.UseLookahead(2),
	)
	directiveLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "String", Pattern: `"(\\.|[^"])*"`},
		{Name: "Number", Pattern: `[0-9]+(\.[0-9]+)?`},
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*(-[a-zA-Z0-9_]+)*`},
		{Name: "Operator", Pattern: `==|!=|&&`},
		{Name: "Punct", Pattern: `[-=,.*:\[\]()]`},
		{Name: "Whitespace", Pattern: `\s+`},
	})
)

type annotation struct {
	Directive Directive `parser:"'di' ':' @@"`
}

// Directive is a single parsed directive.
type Directive interface {
	directive()
	// Validate the directive.
	Validate() error
	String() string
}

// TypeRef is a reference to a type as written in a directive, eg. "[]pkg.Handler" or "Repo[User]".
type TypeRef struct {
	Slice bool       `parser:"@('[' ']')?"`
	Name  string     `parser:"@Ident (@'.' @Ident)*"`
	Args  []*TypeRef `parser:"('[' @@ (',' @@)* ']')?"`
}

// Package qualifier of the reference, if any.
func (t *TypeRef) Package() string {
	pkg, _, ok := strings.Cut(t.Name, ".")
	if !ok {
		return ""
	}
	return pkg
}

// Local name of the type without package qualifier.
func (t *TypeRef) Local() string {
	if _, local, ok := strings.Cut(t.Name, "."); ok {
		return local
	}
	return t.Name
}

func (t *TypeRef) String() string {
	out := t.Name
	if t.Slice {
		out = "[]" + out
	}
	if len(t.Args) > 0 {
		args := make([]string, len(t.Args))
		for i, arg := range t.Args {
			args[i] = arg.String()
		}
		out += "[" + strings.Join(args, ", ") + "]"
	}
	return out
}

func joinRefs(refs []*TypeRef) string {
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = ref.String()
	}
	return strings.Join(out, ",")
}

// DirectiveService marks a struct as a registered service.
type DirectiveService struct {
	Lifetime descriptor.Lifetime        `parser:"'service' @('singleton' | 'scoped' | 'transient')?"`
	FanOut   descriptor.FanOutMode      `parser:"( 'mode' '=' @Ident"`
	Sharing  descriptor.InstanceSharing `parser:"| 'sharing' '=' @Ident"`
	Skip     []*TypeRef                 `parser:"| 'skip' '=' @@ (',' @@)* )*"`
}

func (d *DirectiveService) directive() {}
func (d *DirectiveService) String() string {
	out := "di:service"
	if d.Lifetime != descriptor.Unspecified {
		out += " " + d.Lifetime.String()
	}
	if d.FanOut != descriptor.All {
		out += " mode=" + d.FanOut.String()
	}
	if d.Sharing != descriptor.Separate {
		out += " sharing=" + d.Sharing.String()
	}
	if len(d.Skip) > 0 {
		out += " skip=" + joinRefs(d.Skip)
	}
	return out
}
func (d *DirectiveService) Validate() error {
	for _, skip := range d.Skip {
		if skip.Slice {
			return errors.Errorf("can not skip a slice type %s", skip)
		}
	}
	return nil
}

// DirectiveAbstract marks a struct as a base type that is never registered itself.
type DirectiveAbstract struct {
	Abstract bool `parser:"@'abstract'"`
}

func (d *DirectiveAbstract) directive()      {}
func (d *DirectiveAbstract) String() string  { return "di:abstract" }
func (d *DirectiveAbstract) Validate() error { return nil }

// DirectiveExternal marks a service as provided outside the analysed code.
type DirectiveExternal struct {
	External bool `parser:"@'external'"`
}

func (d *DirectiveExternal) directive()      {}
func (d *DirectiveExternal) String() string  { return "di:external" }
func (d *DirectiveExternal) Validate() error { return nil }

// DirectiveDepends declares dependencies in bulk, in the order listed.
type DirectiveDepends struct {
	Types []*TypeRef `parser:"'depends' @@ (',' @@)*"`
}

func (d *DirectiveDepends) directive()      {}
func (d *DirectiveDepends) String() string  { return "di:depends " + joinRefs(d.Types) }
func (d *DirectiveDepends) Validate() error { return nil }

// DirectiveInject marks a field for injection.
type DirectiveInject struct {
	Name string `parser:"'inject' ('name' '=' @Ident)?"`
}

func (d *DirectiveInject) directive() {}
func (d *DirectiveInject) String() string {
	if d.Name != "" {
		return "di:inject name=" + d.Name
	}
	return "di:inject"
}
func (d *DirectiveInject) Validate() error { return nil }

// DirectiveConfig binds a field to configuration.
type DirectiveConfig struct {
	Key     string  `parser:"'config' ( 'key' '=' @String"`
	Default *string `parser:"         | 'default' '=' @(String | '-'? Number Ident? | Ident) )*"`
}

func (d *DirectiveConfig) directive() {}
func (d *DirectiveConfig) String() string {
	out := "di:config"
	if d.Key != "" {
		out += " key=" + quote(d.Key)
	}
	if d.Default != nil {
		out += " default=" + quote(*d.Default)
	}
	return out
}
func (d *DirectiveConfig) Validate() error {
	if strings.TrimSpace(d.Key) == "" && d.Key != "" {
		return errors.Errorf("configuration key can not be blank")
	}
	return nil
}

// DirectiveWhen gates registration of a service on a condition. "unless" negates it.
type DirectiveWhen struct {
	Unless     bool         `parser:"( 'when' | @'unless' )"`
	Conditions []*Condition `parser:"@@ ( '&&' @@ )*"`
}

func (d *DirectiveWhen) directive() {}
func (d *DirectiveWhen) String() string {
	parts := make([]string, len(d.Conditions))
	for i, cond := range d.Conditions {
		parts[i] = cond.String()
	}
	keyword := "when"
	if d.Unless {
		keyword = "unless"
	}
	return "di:" + keyword + " " + strings.Join(parts, " && ")
}
func (d *DirectiveWhen) Validate() error {
	if d.Unless && len(d.Conditions) > 1 {
		return errors.Errorf("unless accepts a single condition")
	}
	for _, cond := range d.Conditions {
		if cond.Key == "" && len(cond.Environments) == 0 {
			return errors.Errorf("empty condition")
		}
	}
	return nil
}

// Guard converts the directive into guard conditions.
func (d *DirectiveWhen) Guard() []descriptor.Condition {
	out := make([]descriptor.Condition, 0, len(d.Conditions))
	for _, cond := range d.Conditions {
		out = append(out, cond.Condition(d.Unless))
	}
	return out
}

// Condition is a single predicate of a when/unless directive.
type Condition struct {
	Environments []string `parser:"  'env' '=' @(Ident | String) (',' @(Ident | String))*"`
	Key          string   `parser:"| 'config' @String"`
	Operator     string   `parser:"  @('==' | '!=')"`
	Value        string   `parser:"  @(String | Number | Ident)"`
}

func (c *Condition) String() string {
	if c.Key == "" {
		return "env=" + strings.Join(c.Environments, ",")
	}
	return "config " + quote(c.Key) + " " + c.Operator + " " + quote(c.Value)
}

// Condition converts the predicate into a guard condition, negated if requested.
func (c *Condition) Condition(negate bool) descriptor.Condition {
	if c.Key == "" {
		kind := descriptor.EnvironmentEquals
		if negate {
			kind = descriptor.EnvironmentExcludes
		}
		return descriptor.Condition{Kind: kind, Environments: c.Environments}
	}
	kind := descriptor.ConfigKeyEquals
	if (c.Operator == "!=") != negate {
		kind = descriptor.ConfigKeyNotEquals
	}
	return descriptor.Condition{Kind: kind, Key: c.Key, Value: c.Value}
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// IsDirective returns true if the comment text (without the "//" marker) is a diplan directive.
func IsDirective(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), Prefix)
}

// Parse a diplan directive, eg. "di:service singleton".
func Parse(text string) (Directive, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.Errorf("empty directive")
	}

	result, err := annotationParser.ParseString("", text)
	if err != nil {
		return nil, errors.Errorf("failed to parse directive: %w", err)
	}
	directive := result.Directive
	if err := directive.Validate(); err != nil {
		return nil, errors.WithStack(err)
	}

	return directive, nil
}
