// Command respack bundles files and values into a single pack file,
// materializes packs back to disk or Go source, moves them through S3 and
// serves them over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/keithlinneman/respack/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdout, os.Stderr)
	err := a.root().Execute(ctx, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "respack:", err)
	}
	stop()
	os.Exit(cli.ExitCode(err))
}
