package main

import (
	"os"

	"trade-mirror-bot/cmd/mirror/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
