// Package scan extracts a [descriptor.Set] from Go source annotated with //di: directives.
//
// A struct type becomes a service when it carries a //di:service, //di:abstract or //di:external directive:
//
//	//di:service singleton skip=io.Closer
//	//di:when env=Development
//	type Cache struct {
//		Base
//
//		//di:inject
//		store Store
//		//di:config key="Cache:Size" default=128
//		size int
//	}
//
// Embedding another service makes it the base type. Interfaces that *T implements become its contracts: those declared
// in the loaded packages, and imported ones named by a skip, depends or inject target.
package scan

import (
	"context"
	"fmt"
	"go/token"
	"go/types"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/alecthomas/errors"
	"golang.org/x/tools/go/packages"

	"github.com/alecthomas/diplan/internal/descriptor"
)

type scanOptions struct {
	patterns []string
	tags     []string
	logger   *slog.Logger
}

type Option func(*scanOptions) error

// WithPatterns adds additional package patterns to load alongside the target directory.
func WithPatterns(patterns ...string) Option {
	return func(o *scanOptions) error {
		o.patterns = append(o.patterns, patterns...)
		return nil
	}
}

// WithTags sets the build tags used when loading packages.
func WithTags(tags ...string) Option {
	return func(o *scanOptions) error {
		for _, tag := range tags {
			if strings.ContainsAny(tag, " ,") {
				return errors.Errorf("invalid build tag %q", tag)
			}
		}
		o.tags = append(o.tags, tags...)
		return nil
	}
}

// WithLogger logs package loading at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(o *scanOptions) error {
		if logger == nil {
			return errors.Errorf("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithOptions applies a group of options.
func WithOptions(options ...Option) Option {
	return func(o *scanOptions) error {
		for _, opt := range options {
			if err := opt(o); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}
}

// Analyse statically loads the Go package in dir, then extracts service descriptors from its //di: directives.
//
// Services are returned in import path order, then source order.
func Analyse(ctx context.Context, dir string, options ...Option) (*descriptor.Set, error) {
	opts := &scanOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range options {
		if err := opt(opts); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	destImport, err := importPathForDir(dir)
	if err != nil {
		return nil, errors.Errorf("failed to determine import path for directory %s: %w", dir, err)
	}

	fset := token.NewFileSet()
	cfg := &packages.Config{
		Context: ctx,
		Dir:     dir,
		Fset:    fset,
		Logf: func(format string, args ...any) {
			opts.logger.Debug("packages.Load", "message", strings.TrimSpace(fmt.Sprintf(format, args...)))
		},
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
			packages.NeedImports | packages.NeedTypes | packages.NeedSyntax |
			packages.NeedTypesInfo,
	}
	if len(opts.tags) > 0 {
		cfg.BuildFlags = []string{"-tags=" + strings.Join(opts.tags, ",")}
	}
	pkgs, err := packages.Load(cfg, append([]string{"."}, opts.patterns...)...)
	if err != nil {
		return nil, errors.Errorf("failed to load packages: %w", err)
	}

	slices.SortFunc(pkgs, func(a, b *packages.Package) int { return strings.Compare(a.PkgPath, b.PkgPath) })
	found := false
	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			return nil, errors.Errorf("%s: %s", pkg.PkgPath, pkg.Errors[0])
		}
		if pkg.PkgPath == destImport {
			found = true
		}
	}
	if !found {
		return nil, errors.Errorf("package %q not found", destImport)
	}

	s := &scanner{fset: fset, logger: opts.logger, byType: map[descriptor.TypeID]*descriptor.Service{}}
	for _, pkg := range pkgs {
		s.collectInterfaces(pkg)
	}
	for _, pkg := range pkgs {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		if err := s.analysePackage(pkg); err != nil {
			return nil, err
		}
	}
	s.resolveContracts()
	s.resolveBases()
	opts.logger.Debug("Scanned packages", "packages", len(pkgs), "services", len(s.set.Services))
	return &s.set, nil
}

// TypeID of a named type, including its type parameters if it is an open generic.
func TypeID(named *types.Named) descriptor.TypeID {
	obj := named.Obj()
	id := obj.Name()
	if obj.Pkg() != nil {
		id = obj.Pkg().Path() + "." + id
	}
	if params := named.TypeParams(); params.Len() > 0 {
		names := make([]string, params.Len())
		for i := range params.Len() {
			names[i] = params.At(i).Obj().Name()
		}
		id += "[" + strings.Join(names, ", ") + "]"
	}
	return descriptor.TypeID(id)
}
