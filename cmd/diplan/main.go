package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"

	"github.com/alecthomas/errors"
	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	"github.com/fatih/color"
	"github.com/kballard/go-shellquote"
	"github.com/lmittmann/tint"

	"github.com/alecthomas/diplan/internal/cycle"
	"github.com/alecthomas/diplan/internal/engine"
	"github.com/alecthomas/diplan/internal/lifetime"
)

type Globals struct {
	Version        kong.VersionFlag     `help:"Print the version and exit."`
	Chdir          kong.ChangeDirFlag   `help:"Change to this directory before running." placeholder:"DIR" short:"C"`
	Config         kong.ConfigFlag      `help:"Load configuration from a TOML file." placeholder:"FILE"`
	LogLevel       slog.Level           `help:"Logging level." default:"warn"`
	LogJSON        bool                 `help:"Log as JSON."`
	NoColor        bool                 `help:"Disable coloured output."`
	LifetimePolicy lifetime.Policy      `help:"Lifetime of services that do not declare one (${enum})." enum:"scoped,transient,singleton,dependencies" default:"scoped"`
	ExternalPolicy cycle.ExternalPolicy `help:"How external services take part in cycle detection (${enum})." enum:"traverse,boundary,suppress" default:"traverse"`
	Parallel       bool                 `help:"Run validation passes concurrently."`
}

// CLI is the command-line interface.
type CLI struct {
	Globals

	Plan     planCmd     `cmd:"" help:"Print the registration plan and synthesised constructors."`
	Check    checkCmd    `cmd:"" help:"Report diagnostics, failing if any error is not in the baseline."`
	Graph    graphCmd    `cmd:"" help:"List resolved dependency edges."`
	Baseline baselineCmd `cmd:"" help:"Accept the current diagnostics into the baseline."`
}

var cli CLI

// app is the state shared by every command.
type app struct {
	logger *slog.Logger
	stdout io.Writer
	color  bool
	engine []engine.Option
}

func newApp(g *Globals, stdout io.Writer, stderr io.Writer) *app {
	var handler slog.Handler
	if g.LogJSON {
		handler = slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: g.LogLevel})
	} else {
		handler = tint.NewHandler(stderr, &tint.Options{
			Level:      g.LogLevel,
			TimeFormat: "15:04:05",
			NoColor:    g.NoColor,
		})
	}
	logger := slog.New(handler)
	return &app{
		logger: logger,
		stdout: stdout,
		color:  !g.NoColor && !color.NoColor,
		engine: []engine.Option{
			engine.WithLogger(logger),
			engine.WithLifetimePolicy(g.LifetimePolicy),
			engine.WithExternalPolicy(g.ExternalPolicy),
			engine.WithParallel(g.Parallel),
		},
	}
}

func main() {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		version = info.Main.Version
	}
	kctx := kong.Parse(&cli,
		kong.Vars{"version": version},
		kong.Configuration(kongtoml.Loader, "diplan.toml"),
		kong.UsageOnError(),
	)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	a := newApp(&cli.Globals, os.Stdout, os.Stderr)
	kctx.BindTo(ctx, (*context.Context)(nil))
	err := kctx.Run(a)
	if errors.Is(err, errCheckFailed) {
		kctx.Exit(1)
	}
	kctx.FatalIfErrorf(err)
}

// parseGoTags extracts build tags from $GOFLAGS.
func parseGoTags() []string {
	goFlags := os.Getenv("GOFLAGS")
	words, err := shellquote.Split(goFlags)
	if err != nil {
		return nil
	}
	tags := []string{}
	for _, word := range words {
		if after, ok := strings.CutPrefix(word, "-tags="); ok {
			tags = append(tags, strings.Split(after, ",")...)
		} else if after, ok := strings.CutPrefix(word, "--tags="); ok {
			tags = append(tags, strings.Split(after, ",")...)
		}
	}
	return tags
}
