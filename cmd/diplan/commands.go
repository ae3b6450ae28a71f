package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/alecthomas/errors"

	"github.com/alecthomas/diplan/internal/descriptor"
	"github.com/alecthomas/diplan/internal/engine"
	"github.com/alecthomas/diplan/internal/report"
	"github.com/alecthomas/diplan/internal/scan"
	"github.com/alecthomas/diplan/internal/store"
)

var errCheckFailed = errors.New("check failed")

// Source selects where descriptors come from.
type Source struct {
	Manifest string   `help:"YAML or JSON descriptor manifest." type:"existingfile" xor:"source" required:"" placeholder:"FILE"`
	Scan     string   `help:"Go package directory to scan for //di: directives." type:"existingdir" xor:"source" required:"" placeholder:"DIR"`
	Tags     []string `help:"Build tags to enable when scanning (will also be read from $GOFLAGS)." placeholder:"TAG"`
	Patterns []string `help:"Additional package patterns to scan." placeholder:"PATTERN"`
}

func (s *Source) load(ctx context.Context, a *app) (*descriptor.Set, error) {
	if s.Manifest != "" {
		path, err := filepath.Abs(s.Manifest)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return descriptor.LoadFile(os.DirFS(filepath.Dir(path)), filepath.Base(path))
	}
	tags := append(append([]string{}, s.Tags...), parseGoTags()...)
	return scan.Analyse(ctx, s.Scan,
		scan.WithTags(tags...),
		scan.WithPatterns(s.Patterns...),
		scan.WithLogger(a.logger),
	)
}

func (s *Source) analyse(ctx context.Context, a *app) (*engine.Result, error) {
	set, err := s.load(ctx, a)
	if err != nil {
		return nil, err
	}
	return engine.Analyse(ctx, set, a.engine...)
}

type planCmd struct {
	Source
	Format report.Format     `help:"Output format (${enum})." enum:"text,json,yaml,repr" default:"text"`
	Env    string            `help:"Only show registrations active in this environment." placeholder:"NAME"`
	Set    map[string]string `help:"Configuration value used to evaluate guards." placeholder:"KEY=VALUE"`
}

func (c *planCmd) Run(ctx context.Context, a *app) error {
	result, err := c.analyse(ctx, a)
	if err != nil {
		return err
	}
	options := []report.Option{report.WithColor(a.color)}
	if c.Env != "" || len(c.Set) > 0 {
		options = append(options, report.WithEnvironment(descriptor.Environment{Name: c.Env, Config: c.Set}))
	}
	return report.Plan(a.stdout, c.Format, result, options...)
}

type BaselineFlags struct {
	Baseline string `help:"DSN of the diagnostic baseline, eg. sqlite://file:diplan.db." placeholder:"DSN"`
	Project  string `help:"Project the baseline belongs to." default:"default"`
}

func (b *BaselineFlags) open(ctx context.Context, a *app) (*store.Store, error) {
	return store.Open(ctx, b.Baseline, store.WithLogger(a.logger))
}

type checkCmd struct {
	Source
	BaselineFlags
	Format report.Format `help:"Output format (${enum})." enum:"text,json,yaml,repr" default:"text"`
}

func (c *checkCmd) Run(ctx context.Context, a *app) error {
	result, err := c.analyse(ctx, a)
	if err != nil {
		return err
	}
	diagnostics := result.Diagnostics
	if c.Baseline != "" {
		s, err := c.open(ctx, a)
		if err != nil {
			return err
		}
		defer s.Close()
		diagnostics, err = s.Filter(ctx, c.Project, diagnostics)
		if err != nil {
			return err
		}
		a.logger.Debug("Filtered baseline", "reported", len(result.Diagnostics), "new", len(diagnostics))
	}
	if err := report.Diagnostics(a.stdout, c.Format, diagnostics, report.WithColor(a.color)); err != nil {
		return err
	}
	if diagnostics.HasErrors() {
		return errCheckFailed
	}
	return nil
}

type graphCmd struct {
	Source
	Format report.Format `help:"Output format (${enum})." enum:"text,json,yaml,repr" default:"text"`
}

func (c *graphCmd) Run(ctx context.Context, a *app) error {
	result, err := c.analyse(ctx, a)
	if err != nil {
		return err
	}
	return report.Graph(a.stdout, c.Format, result.Graph, report.WithColor(a.color))
}

type baselineCmd struct {
	Source
	Baseline string `help:"DSN of the diagnostic baseline, eg. sqlite://file:diplan.db." placeholder:"DSN" required:""`
	Project  string `help:"Project the baseline belongs to." default:"default"`
	Prune    bool   `help:"Remove accepted diagnostics that are no longer reported."`
}

func (c *baselineCmd) Run(ctx context.Context, a *app) error {
	result, err := c.analyse(ctx, a)
	if err != nil {
		return err
	}
	s, err := store.Open(ctx, c.Baseline, store.WithLogger(a.logger))
	if err != nil {
		return err
	}
	defer s.Close()
	accepted, err := s.Accept(ctx, c.Project, result.Diagnostics)
	if err != nil {
		return err
	}
	pruned := 0
	if c.Prune {
		pruned, err = s.Prune(ctx, c.Project, result.Diagnostics)
		if err != nil {
			return err
		}
	}
	a.logger.Info("Updated baseline", "project", c.Project, "accepted", accepted, "pruned", pruned)
	return nil
}
