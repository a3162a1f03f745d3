// Command entigraph inspects and queries an entity repository.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/roach88/entigraph/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
