package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/rustyeddy/breakout/cmd/breakout/cmd"
)

func main() {
	// Local overrides (broker credentials, stream URL) come from .env when
	// present; absence is fine.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
