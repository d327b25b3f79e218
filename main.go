package main

import (
	"os"

	"github.com/spigell/tg-responder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
