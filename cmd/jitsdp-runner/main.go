package main

import (
	"context"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/jitsdp/jitsdp-runner/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.NewApp(os.Stdout, os.Stderr, nil).Main(ctx, path.Base(os.Args[0]), os.Args[1:])
	cancel()
	os.Exit(code)
}
