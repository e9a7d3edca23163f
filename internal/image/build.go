package image

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/jitsdp/jitsdp-runner/internal/runner"
)

var ErrBuildFailed = errors.New("docker build failed")

// Build writes the Dockerfile into dir and builds it with docker, tagging the
// result with tag. Output of docker goes to out.
func Build(ctx context.Context, exec runner.Executor, s Spec, dir, tag string, out io.Writer) error {
	dockerfilePath := filepath.Join(dir, "Dockerfile")
	f, err := os.Create(dockerfilePath)
	if err != nil {
		return errors.Wrap(err, "create Dockerfile")
	}
	if err := Render(f, s); err != nil {
		_ = f.Close()

		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close Dockerfile")
	}

	args := []string{"build", "--file", dockerfilePath}
	args = append(args, BuildArgs(s)...)
	if tag != "" {
		args = append(args, "--tag", tag)
	}
	args = append(args, dir)

	code, err := exec.Execute(ctx, runner.Command{Path: "docker", Args: args, Dir: dir, Stdout: out, Stderr: out})
	if err != nil {
		return errors.Wrap(err, "docker build")
	}
	if code != 0 {
		return errors.Wrapf(ErrBuildFailed, "exit status %d", code)
	}

	return nil
}
