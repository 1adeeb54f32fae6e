package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/arthur-debert/dotapply/cmd/dotapply"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := dotapply.NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exit *dotapply.ExitError
		if errors.As(err, &exit) {
			stop()
			os.Exit(exit.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
