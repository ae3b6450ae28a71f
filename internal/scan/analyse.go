package scan

import (
	"go/ast"
	"go/token"
	"go/types"
	"log/slog"
	"strings"

	"github.com/alecthomas/errors"
	"golang.org/x/tools/go/packages"

	"github.com/alecthomas/diplan/internal/descriptor"
	"github.com/alecthomas/diplan/internal/directiveparser"
)

type scanner struct {
	fset       *token.FileSet
	logger     *slog.Logger
	set        descriptor.Set
	byType     map[descriptor.TypeID]*descriptor.Service
	interfaces []*types.Named
	// known contract candidates, by ID.
	known map[descriptor.ContractID]bool
	// named types of each service, matched against the contract candidates once every package is scanned.
	named map[descriptor.TypeID]*types.Named
	// embedded types of each service, in field order, resolved to a base once every package is scanned.
	embedded map[descriptor.TypeID][]descriptor.TypeID
}

// collectInterfaces records the named interfaces of a package as contract candidates, and their embedded interfaces
// as contract inheritance.
func (s *scanner) collectInterfaces(pkg *packages.Package) {
	scope := pkg.Types.Scope()
	for _, name := range scope.Names() {
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || tn.IsAlias() {
			continue
		}
		named, ok := tn.Type().(*types.Named)
		if !ok {
			continue
		}
		s.addInterface(named)
	}
}

// reference records an interface from outside the loaded packages that a directive or field refers to as a contract
// candidate, eg. io.Closer.
func (s *scanner) reference(t types.Type) {
	named, ok := t.(*types.Named)
	if !ok || named.Obj().Pkg() == nil {
		return
	}
	s.addInterface(named.Origin())
}

func (s *scanner) addInterface(named *types.Named) {
	iface, ok := named.Underlying().(*types.Interface)
	if !ok || !iface.IsMethodSet() || iface.NumMethods() == 0 {
		return
	}
	id := contractID(named)
	if s.known[id] {
		return
	}
	if s.known == nil {
		s.known = map[descriptor.ContractID]bool{}
	}
	s.known[id] = true
	s.interfaces = append(s.interfaces, named)
	var extends []descriptor.ContractID
	for i := range iface.NumEmbeddeds() {
		if embedded, ok := iface.EmbeddedType(i).(*types.Named); ok {
			extends = append(extends, contractID(embedded))
		}
	}
	if len(extends) > 0 {
		s.set.Contracts = append(s.set.Contracts, descriptor.Contract{ID: id, Extends: extends})
	}
}

func (s *scanner) analysePackage(pkg *packages.Package) error {
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			switch decl := decl.(type) {
			case *ast.FuncDecl:
				directives, err := s.parseDirectives(decl.Doc)
				if err != nil {
					return err
				}
				if len(directives) > 0 {
					return errors.Errorf("%s: directives are only valid on types and fields", s.fset.Position(decl.Pos()))
				}

			case *ast.GenDecl:
				if decl.Tok != token.TYPE {
					continue
				}
				for _, spec := range decl.Specs {
					typeSpec, ok := spec.(*ast.TypeSpec)
					if !ok {
						continue
					}
					doc := typeSpec.Doc
					if doc == nil && len(decl.Specs) == 1 {
						doc = decl.Doc
					}
					directives, err := s.parseDirectives(doc)
					if err != nil {
						return err
					} else if len(directives) == 0 {
						continue
					}
					if err := s.analyseType(pkg, typeSpec, directives); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// Parse every directive in a comment group.
func (s *scanner) parseDirectives(doc *ast.CommentGroup) ([]directiveparser.Directive, error) {
	if doc == nil {
		return nil, nil
	}
	var out []directiveparser.Directive
	for _, comment := range doc.List {
		text, ok := strings.CutPrefix(comment.Text, "//")
		if !ok || !strings.HasPrefix(text, directiveparser.Prefix) {
			continue
		}
		directive, err := directiveparser.Parse(text)
		if err != nil {
			return nil, errors.Errorf("%s: %w", s.fset.Position(comment.Pos()), err)
		}
		out = append(out, directive)
	}
	return out, nil
}

func (s *scanner) analyseType(pkg *packages.Package, spec *ast.TypeSpec, directives []directiveparser.Directive) error {
	pos := s.fset.Position(spec.Pos())
	tn, ok := pkg.TypesInfo.Defs[spec.Name].(*types.TypeName)
	if !ok {
		return errors.Errorf("%s: no type information for %s", pos, spec.Name.Name)
	}
	named, ok := tn.Type().(*types.Named)
	if !ok {
		return errors.Errorf("%s: directives are not valid on alias %s", pos, spec.Name.Name)
	}
	structType, ok := spec.Type.(*ast.StructType)
	if !ok {
		return errors.Errorf("%s: directives are only valid on struct types", pos)
	}

	svc := &descriptor.Service{Type: TypeID(named), Position: pos.String()}
	for i := range named.TypeParams().Len() {
		svc.TypeParams = append(svc.TypeParams, named.TypeParams().At(i).Obj().Name())
	}

	registered := false
	bulk := 0
	for _, directive := range directives {
		switch directive := directive.(type) {
		case *directiveparser.DirectiveService:
			registered = true
			svc.Lifetime = directive.Lifetime
			svc.Directives.FanOut = directive.FanOut
			svc.Directives.Sharing = directive.Sharing
			for _, ref := range directive.Skip {
				contract, obj, err := resolveRef(pkg, ref)
				if err != nil {
					return errors.Errorf("%s: %w", pos, err)
				}
				s.referenceObject(obj)
				svc.Directives.Skip = append(svc.Directives.Skip, contract)
			}

		case *directiveparser.DirectiveAbstract:
			registered = true
			svc.Abstract = true

		case *directiveparser.DirectiveExternal:
			registered = true
			svc.External = true

		case *directiveparser.DirectiveDepends:
			for _, ref := range directive.Types {
				target, obj, err := resolveRef(pkg, &directiveparser.TypeRef{Name: ref.Name, Args: ref.Args})
				if err != nil {
					return errors.Errorf("%s: %w", pos, err)
				}
				s.referenceObject(obj)
				dep := descriptor.Dependency{Target: target, Origin: descriptor.BulkDeclaration, Order: bulk}
				if ref.Slice {
					dep.Cardinality = descriptor.Collection
				}
				svc.Dependencies = append(svc.Dependencies, dep)
				bulk++
			}

		case *directiveparser.DirectiveWhen:
			if svc.Directives.Guard == nil {
				svc.Directives.Guard = &descriptor.Guard{}
			}
			svc.Directives.Guard.Conditions = append(svc.Directives.Guard.Conditions, directive.Guard()...)

		default:
			return errors.Errorf("%s: %s is not valid on a type", pos, directive)
		}
	}
	if !registered {
		return errors.Errorf("%s: %s needs a service, abstract or external directive", pos, spec.Name.Name)
	}

	if err := s.analyseFields(pkg, svc, structType); err != nil {
		return err
	}
	if s.named == nil {
		s.named = map[descriptor.TypeID]*types.Named{}
	}
	s.named[svc.Type] = named

	s.logger.Debug("Found service", "type", svc.Type, "position", svc.Position)
	s.set.Services = append(s.set.Services, svc)
	s.byType[svc.Type] = svc
	return nil
}

func (s *scanner) analyseFields(pkg *packages.Package, svc *descriptor.Service, structType *ast.StructType) error {
	order := 0
	for _, field := range structType.Fields.List {
		pos := s.fset.Position(field.Pos())
		fieldType := pkg.TypesInfo.TypeOf(field.Type)
		if fieldType == nil {
			return errors.Errorf("%s: no type information for field", pos)
		}
		if len(field.Names) == 0 {
			if named, ok := deref(fieldType).(*types.Named); ok {
				if s.embedded == nil {
					s.embedded = map[descriptor.TypeID][]descriptor.TypeID{}
				}
				s.embedded[svc.Type] = append(s.embedded[svc.Type], TypeID(named.Origin()))
			}
		}
		directives, err := s.parseDirectives(field.Doc)
		if err != nil {
			return err
		}
		if len(directives) == 0 {
			continue
		}
		if len(directives) > 1 {
			return errors.Errorf("%s: a field accepts a single directive", pos)
		}
		names := make([]string, 0, len(field.Names))
		for _, name := range field.Names {
			names = append(names, name.Name)
		}
		if len(names) == 0 {
			names = append(names, embeddedName(field.Type))
		}
		for _, name := range names {
			dep := descriptor.Dependency{Field: name, Order: order}
			switch directive := directives[0].(type) {
			case *directiveparser.DirectiveInject:
				dep.Origin = descriptor.FieldMarker
				dep.Name = directive.Name
				dep.Target, dep.Cardinality = fieldTarget(fieldType)
				if slice, ok := fieldType.(*types.Slice); ok {
					s.reference(deref(slice.Elem()))
				} else {
					s.reference(deref(fieldType))
				}

			case *directiveparser.DirectiveConfig:
				dep.Origin = descriptor.ConfigurationBinding
				dep.Target = descriptor.ContractID(types.TypeString(fieldType, nil))
				dep.Config = &descriptor.ConfigBinding{Key: directive.Key, Default: directive.Default}

			default:
				return errors.Errorf("%s: %s is not valid on a field", pos, directive)
			}
			svc.Dependencies = append(svc.Dependencies, dep)
			order++
		}
	}
	return nil
}

// contracts returns the interfaces *T implements. An open generic type is matched against generic interfaces of the
// same arity, instantiated with its own type parameters.
func (s *scanner) contracts(named *types.Named) []descriptor.ContractID {
	var out []descriptor.ContractID
	recv := types.Type(types.NewPointer(named))
	var args []types.Type
	if params := named.TypeParams(); params.Len() > 0 {
		for i := range params.Len() {
			args = append(args, params.At(i))
		}
		inst, err := types.Instantiate(nil, named, args, false)
		if err != nil {
			return nil
		}
		recv = types.NewPointer(inst)
	}
	for _, candidate := range s.interfaces {
		if n := candidate.TypeParams().Len(); n > 0 {
			if n != len(args) {
				continue
			}
			inst, err := types.Instantiate(nil, candidate, args, false)
			if err != nil {
				continue
			}
			candidate, _ = inst.(*types.Named)
			if candidate == nil {
				continue
			}
		}
		iface, ok := candidate.Underlying().(*types.Interface)
		if !ok {
			continue
		}
		if types.Implements(recv, iface) {
			out = append(out, contractID(candidate))
		}
	}
	return out
}

// resolveContracts sets the contracts of each service once every candidate is known.
func (s *scanner) resolveContracts() {
	for _, svc := range s.set.Services {
		svc.Contracts = s.contracts(s.named[svc.Type])
	}
}

func (s *scanner) referenceObject(obj types.Object) {
	if tn, ok := obj.(*types.TypeName); ok && !tn.IsAlias() {
		s.reference(tn.Type())
	}
}

// resolveBases sets the base of each service to the first embedded type that is itself a service.
func (s *scanner) resolveBases() {
	for _, svc := range s.set.Services {
		for _, embedded := range s.embedded[svc.Type] {
			if _, ok := s.byType[embedded]; ok {
				svc.Base = embedded
				break
			}
		}
	}
}

// resolveRef resolves a type reference written in a directive relative to the package it appears in, returning its ID
// and the object it names.
func resolveRef(pkg *packages.Package, ref *directiveparser.TypeRef) (descriptor.ContractID, types.Object, error) {
	var (
		name string
		obj  types.Object
	)
	switch qualifier := ref.Package(); {
	case qualifier == "" && types.Universe.Lookup(ref.Name) != nil:
		name = ref.Name
		obj = types.Universe.Lookup(ref.Name)
	case qualifier == "":
		obj = pkg.Types.Scope().Lookup(ref.Name)
		if obj == nil {
			return "", nil, errors.Errorf("unknown type %s", ref.Name)
		}
		name = pkg.PkgPath + "." + ref.Name
	default:
		var imported *types.Package
		for _, imp := range pkg.Types.Imports() {
			if imp.Name() == qualifier {
				imported = imp
				break
			}
		}
		if imported == nil {
			return "", nil, errors.Errorf("unknown package %q in %s", qualifier, ref)
		}
		obj = imported.Scope().Lookup(ref.Local())
		if obj == nil {
			return "", nil, errors.Errorf("unknown type %s", ref)
		}
		name = imported.Path() + "." + ref.Local()
	}
	if len(ref.Args) > 0 {
		args := make([]string, 0, len(ref.Args))
		for _, arg := range ref.Args {
			id, _, err := resolveRef(pkg, arg)
			if err != nil {
				return "", nil, err
			}
			if arg.Slice {
				id = "[]" + id
			}
			args = append(args, string(id))
		}
		name += "[" + strings.Join(args, ", ") + "]"
	}
	return descriptor.ContractID(name), obj, nil
}

// fieldTarget returns the contract an injected field resolves, dereferencing pointers. Slices are collections.
func fieldTarget(t types.Type) (descriptor.ContractID, descriptor.Cardinality) {
	if slice, ok := t.(*types.Slice); ok {
		return contractID(deref(slice.Elem())), descriptor.Collection
	}
	return contractID(deref(t)), descriptor.Single
}

func contractID(t types.Type) descriptor.ContractID {
	if named, ok := t.(*types.Named); ok && named.TypeArgs().Len() == 0 {
		return descriptor.ContractID(TypeID(named))
	}
	return descriptor.ContractID(types.TypeString(t, nil))
}

func deref(t types.Type) types.Type {
	if ptr, ok := t.(*types.Pointer); ok {
		return ptr.Elem()
	}
	return t
}

func embeddedName(expr ast.Expr) string {
	switch expr := expr.(type) {
	case *ast.StarExpr:
		return embeddedName(expr.X)
	case *ast.SelectorExpr:
		return expr.Sel.Name
	case *ast.IndexExpr:
		return embeddedName(expr.X)
	case *ast.IndexListExpr:
		return embeddedName(expr.X)
	case *ast.Ident:
		return expr.Name
	}
	return ""
}
