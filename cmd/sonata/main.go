package main

import (
	"os"

	"github.com/sonatalabs/sonata/cmd/sonata/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
