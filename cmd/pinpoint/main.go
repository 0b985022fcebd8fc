// Pinpoint geographic dataset builder
// Serves the dataset builder API and manages saved datasets from the command line
package main

import (
	"context"
	"os"

	"github.com/nainya/pinpoint/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
