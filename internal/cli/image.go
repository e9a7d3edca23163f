package cli

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/google/subcommands"
	"github.com/pkg/errors"

	"github.com/jitsdp/jitsdp-runner/internal/image"
)

func (a *App) image() []subcommands.Command {
	return []subcommands.Command{
		&dockerfileCmd{command: a.command("dockerfile", "render the Dockerfile of the runtime image")},
		&imageBuildCmd{command: a.command("image-build", "build the runtime image with docker")},
		&imageVerifyCmd{command: a.command("image-verify", "check a saved image against the configuration", "image-verify <image.tar>\n")},
	}
}

type dockerfileCmd struct {
	command
	out string
}

func (c *dockerfileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.out, "o", "", "output file, stdout when empty")
}

func (c *dockerfileCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, logger, ok := c.start()
	if !ok {
		return subcommands.ExitFailure
	}

	err := writeTo(c.out, c.app.Stdout, func(w io.Writer) error { return image.Render(w, cfg.Image) })
	if err != nil {
		return fail(logger, err)
	}

	return subcommands.ExitSuccess
}

type imageBuildCmd struct {
	command
	dir string
	tag string
}

func (c *imageBuildCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dir, "dir", "", "build context, the tool directory when empty")
	f.StringVar(&c.tag, "tag", "jitsdp", "image tag")
}

func (c *imageBuildCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, logger, ok := c.start()
	if !ok {
		return subcommands.ExitFailure
	}

	dir := c.dir
	if dir == "" {
		dir = cfg.Tool.Dir
	}
	logger.Info().Str("dir", dir).Str("tag", c.tag).Msg("building image")
	if err := image.Build(ctx, c.app.Executor, cfg.Image, dir, c.tag, c.app.Stderr); err != nil {
		return fail(logger, err)
	}

	return subcommands.ExitSuccess
}

type imageVerifyCmd struct {
	command
}

func (c *imageVerifyCmd) SetFlags(*flag.FlagSet) {}

func (c *imageVerifyCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(c.app.Stderr, c.Usage())

		return subcommands.ExitUsageError
	}
	cfg, logger, ok := c.start()
	if !ok {
		return subcommands.ExitFailure
	}

	err := image.Verify(f.Arg(0), image.ExpectationFor(cfg.Image))
	var verr *image.VerificationError
	if errors.As(err, &verr) {
		for _, v := range verr.Violations {
			fmt.Fprintln(c.app.Stdout, v)
		}

		return subcommands.ExitFailure
	}
	if err != nil {
		return fail(logger, err)
	}
	fmt.Fprintln(c.app.Stdout, "ok")

	return subcommands.ExitSuccess
}
