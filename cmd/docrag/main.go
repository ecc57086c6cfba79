package main

import (
	"os"

	"github.com/cloo-solutions/docrag/internal/cli"
)

func main() {
	os.Exit(cli.Execute(cli.NewRootCmd()))
}
