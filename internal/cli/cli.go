// Package cli wires the jitsdp-runner subcommands.
package cli

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/google/subcommands"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jitsdp/jitsdp-runner/internal/config"
	"github.com/jitsdp/jitsdp-runner/internal/logging"
	"github.com/jitsdp/jitsdp-runner/internal/runner"
)

// App holds what every subcommand shares.
type App struct {
	Stdout   io.Writer
	Stderr   io.Writer
	Executor runner.Executor

	configPath string
	logLevel   string
}

func NewApp(stdout, stderr io.Writer, exec runner.Executor) *App {
	if exec == nil {
		exec = runner.ExecExecutor{}
	}

	return &App{Stdout: stdout, Stderr: stderr, Executor: exec}
}

// Main parses args and runs the selected subcommand. It returns the exit
// status of the process.
func (a *App) Main(ctx context.Context, name string, args []string) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	fs.StringVar(&a.configPath, "config", "", "configuration file, the embedded defaults when empty")
	fs.StringVar(&a.logLevel, "log-level", "", "log level overriding the configuration")

	cmdr := subcommands.NewCommander(fs, name)
	cmdr.Output = a.Stdout
	cmdr.Error = a.Stderr
	cmdr.Register(cmdr.HelpCommand(), "help")
	cmdr.Register(cmdr.FlagsCommand(), "help")
	cmdr.Register(cmdr.CommandsCommand(), "help")
	for _, c := range a.battery() {
		cmdr.Register(c, "battery")
	}
	for _, c := range a.image() {
		cmdr.Register(c, "image")
	}
	for _, c := range a.data() {
		cmdr.Register(c, "data")
	}
	cmdr.Register(&serveCmd{command: a.command("serve", "serve the tracking API")}, "tracking")

	if err := fs.Parse(args); err != nil {
		return int(subcommands.ExitUsageError)
	}

	return int(cmdr.Execute(ctx))
}

func (a *App) setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	logger, err := logging.New(a.Stderr, level, cfg.Log.Format)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	return cfg, logger, nil
}

// command implements the descriptive part of subcommands.Command.
type command struct {
	app      *App
	name     string
	synopsis string
	usage    string
}

func (a *App) command(name, synopsis string, usage ...string) command {
	u := name + " [flags]\n"
	if len(usage) > 0 {
		u = usage[0]
	}

	return command{app: a, name: name, synopsis: synopsis, usage: u}
}

func (c *command) Name() string     { return c.name }
func (c *command) Synopsis() string { return c.synopsis }
func (c *command) Usage() string    { return c.usage }

// start loads the configuration and the logger, reporting failures on
// stderr.
func (c *command) start() (*config.Config, zerolog.Logger, bool) {
	cfg, logger, err := c.app.setup()
	if err != nil {
		io.WriteString(c.app.Stderr, c.name+": "+err.Error()+"\n") //nolint:errcheck

		return nil, logger, false
	}

	return cfg, logger.With().Str("command", c.name).Logger(), true
}

func fail(logger zerolog.Logger, err error) subcommands.ExitStatus {
	logger.Error().Err(err).Msg("failed")

	return subcommands.ExitFailure
}

// output opens path for writing, or returns stdout for "" and "-".
func output(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "create %s", path)
	}

	return f, f.Close, nil
}

// open opens path for reading, or returns stdin for "-".
func open(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	return f, nil
}
