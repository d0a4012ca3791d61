package main

import (
	"os"

	"github.com/loomwork/loom/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
