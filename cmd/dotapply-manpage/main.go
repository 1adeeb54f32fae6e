package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra/doc"

	"github.com/arthur-debert/dotapply/cmd/dotapply"
	"github.com/arthur-debert/dotapply/internal/version"
)

func main() {
	rootCmd := dotapply.NewRootCmd()

	header := &doc.GenManHeader{
		Title:   "DOTAPPLY",
		Section: "1",
		Source:  "dotapply " + version.Version,
		Manual:  "dotapply manual",
	}

	err := doc.GenMan(rootCmd, header, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating man page: %v\n", err)
		os.Exit(1)
	}
}
