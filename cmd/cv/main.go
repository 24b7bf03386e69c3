package main

import (
	"os"

	"contentvault/cmd/cv/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
