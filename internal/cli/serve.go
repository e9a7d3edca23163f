package cli

import (
	"context"
	"flag"
	"time"

	"github.com/google/subcommands"

	"github.com/jitsdp/jitsdp-runner/internal/tracking"
)

type serveCmd struct {
	command
	addr  string
	grace time.Duration
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "", "listen address, the configured one when empty")
	f.DurationVar(&c.grace, "grace", 10*time.Second, "graceful shutdown period")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, logger, ok := c.start()
	if !ok {
		return subcommands.ExitFailure
	}

	store, err := tracking.Open(cfg.Tracking.Database)
	if err != nil {
		return fail(logger, err)
	}
	defer store.Close()

	addr := cfg.Tracking.Addr
	if c.addr != "" {
		addr = c.addr
	}
	logger.Info().Str("addr", addr).Str("database", cfg.Tracking.Database).Msg("serving")
	if err := tracking.Serve(ctx, tracking.NewServer(store, logger), addr, c.grace); err != nil {
		return fail(logger, err)
	}

	return subcommands.ExitSuccess
}
