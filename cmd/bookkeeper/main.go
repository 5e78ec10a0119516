package main

import (
	"os"

	"bookkeeper/internal/adapters/cli"
	"bookkeeper/internal/config"
)

func main() {
	env := &cli.Env{}
	if err := cli.NewRootCommand(env, config.Load).Execute(); err != nil {
		os.Exit(1)
	}
}
