// Package taskrunner runs the project targets (format, test, run, clean)
// and their dependencies.
package taskrunner

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jitsdp/jitsdp-runner/internal/battery"
	"github.com/jitsdp/jitsdp-runner/internal/runner"
	"github.com/jitsdp/jitsdp-runner/internal/store"
)

var (
	ErrUnknownTarget    = errors.New("unknown target")
	ErrDuplicateTarget  = errors.New("duplicate target")
	ErrCommandFailed    = errors.New("command failed")
	ErrPathEscapesRoot  = errors.New("path escapes root")
	ErrNoBatteryRunner  = errors.New("target runs the battery but no battery runner is set")
	ErrTargetNameNotSet = errors.New("target name must be set")
)

// Target is a named list of steps. Steps run in this order: commands, the
// battery, removals.
type Target struct {
	Name      string     `yaml:"name"`
	DependsOn []string   `yaml:"depends_on,omitempty"`
	Commands  [][]string `yaml:"commands,omitempty"`
	Battery   bool       `yaml:"battery,omitempty"`
	Remove    []string   `yaml:"remove,omitempty"`
}

// BatteryRunner runs the experiment battery for targets with Battery set.
type BatteryRunner interface {
	Run(ctx context.Context, invs []battery.Invocation) (runner.Summary, error)
}

type Options struct {
	// Root is the working directory of commands and the base of removals.
	Root        string
	Executor    runner.Executor
	Battery     BatteryRunner
	Invocations []battery.Invocation
	Stdout      io.Writer
	Stderr      io.Writer
	Logger      zerolog.Logger
}

type TaskRunner struct {
	opts  Options
	store *store.MemoryStore[string, Target]
	graph graph.Graph[string, Target]
}

func targetHash(t Target) string {
	return t.Name
}

// New builds the dependency graph of targets. It fails on duplicate names,
// unknown dependencies and cycles.
func New(targets []Target, opts Options) (*TaskRunner, error) {
	if opts.Executor == nil {
		opts.Executor = runner.ExecExecutor{}
	}
	if opts.Root == "" {
		opts.Root = "."
	}

	s := store.NewMemoryStore[string, Target]()
	g := graph.NewWithStore(targetHash, s, graph.Directed(), graph.PreventCycles())
	for _, t := range targets {
		if strings.TrimSpace(t.Name) == "" {
			return nil, ErrTargetNameNotSet
		}
		err := g.AddVertex(t)
		if errors.Is(err, graph.ErrVertexAlreadyExists) {
			return nil, errors.Wrap(ErrDuplicateTarget, t.Name)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "add target %s", t.Name)
		}
	}
	for _, t := range targets {
		for _, dep := range t.DependsOn {
			err := g.AddEdge(dep, t.Name)
			if errors.Is(err, graph.ErrVertexNotFound) {
				return nil, errors.Wrapf(ErrUnknownTarget, "%s depends on %s", t.Name, dep)
			}
			if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, errors.Wrapf(err, "%s depends on %s", t.Name, dep)
			}
		}
	}

	return &TaskRunner{opts: opts, store: s, graph: g}, nil
}

// Plan returns the named targets and everything they depend on, each once,
// dependencies first. Targets with no ordering constraint between them come
// in name order.
func (tr *TaskRunner) Plan(names ...string) ([]Target, error) {
	needed := make(map[string]struct{})
	for _, name := range names {
		ancestors, err := tr.store.Ancestors(name)
		if errors.Is(err, graph.ErrVertexNotFound) {
			return nil, errors.Wrap(ErrUnknownTarget, name)
		}
		if err != nil {
			return nil, err
		}
		needed[name] = struct{}{}
		for _, a := range ancestors {
			needed[a] = struct{}{}
		}
	}

	order, err := graph.StableTopologicalSort(tr.graph, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, errors.Wrap(err, "sort targets")
	}

	plan := make([]Target, 0, len(needed))
	for _, name := range order {
		if _, ok := needed[name]; !ok {
			continue
		}
		t, err := tr.graph.Vertex(name)
		if err != nil {
			return nil, errors.Wrapf(err, "get target %s", name)
		}
		plan = append(plan, t)
	}

	return plan, nil
}

// Run executes the plan of names and stops at the first failing step.
func (tr *TaskRunner) Run(ctx context.Context, names ...string) error {
	plan, err := tr.Plan(names...)
	if err != nil {
		return err
	}

	for _, t := range plan {
		logger := tr.opts.Logger.With().Str("target", t.Name).Logger()
		logger.Info().Msg("target started")
		if err := tr.runTarget(ctx, t, logger); err != nil {
			return errors.Wrapf(err, "target %s", t.Name)
		}
		logger.Info().Msg("target done")
	}

	return nil
}

func (tr *TaskRunner) runTarget(ctx context.Context, t Target, logger zerolog.Logger) error {
	for _, c := range t.Commands {
		if len(c) == 0 {
			continue
		}
		logger.Debug().Str("command", battery.ShellLine(c)).Msg("running command")
		code, err := tr.opts.Executor.Execute(ctx, runner.Command{
			Path:   c[0],
			Args:   c[1:],
			Dir:    tr.opts.Root,
			Stdout: tr.opts.Stdout,
			Stderr: tr.opts.Stderr,
		})
		if err != nil {
			return errors.Wrap(err, battery.ShellLine(c))
		}
		if code != 0 {
			return errors.Wrapf(ErrCommandFailed, "%s: exit status %d", battery.ShellLine(c), code)
		}
	}

	if t.Battery {
		if tr.opts.Battery == nil {
			return ErrNoBatteryRunner
		}
		if _, err := tr.opts.Battery.Run(ctx, tr.opts.Invocations); err != nil {
			return err
		}
	}

	if len(t.Remove) > 0 {
		return Clean(tr.opts.Root, t.Remove, logger)
	}

	return nil
}

// Draw writes the target graph in DOT format.
func (tr *TaskRunner) Draw(w io.Writer) error {
	return errors.Wrap(draw.DOT(tr.graph, w), "draw targets")
}

// Clean removes every path under root. Missing paths are not an error. Paths
// resolving outside root, or to root itself, are rejected before anything is
// removed.
func Clean(root string, paths []string, logger zerolog.Logger) error {
	resolved := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := resolveUnder(root, p)
		if err != nil {
			return err
		}
		resolved = append(resolved, abs)
	}

	for i, abs := range resolved {
		_, statErr := os.Lstat(abs)
		if err := os.RemoveAll(abs); err != nil {
			return errors.Wrapf(err, "remove %s", paths[i])
		}
		logger.Info().Str("path", paths[i]).Bool("existed", statErr == nil).Msg("removed")
	}

	return nil
}

func resolveUnder(root, p string) (string, error) {
	if filepath.IsAbs(p) {
		return "", errors.Wrap(ErrPathEscapesRoot, p)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", errors.Wrapf(err, "resolve root %s", root)
	}
	abs := filepath.Join(absRoot, p)
	rel, err := filepath.Rel(absRoot, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Wrap(ErrPathEscapesRoot, p)
	}

	return abs, nil
}
