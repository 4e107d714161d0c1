package main

import (
	"os"

	"github.com/batchscribe/batchscribe/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
