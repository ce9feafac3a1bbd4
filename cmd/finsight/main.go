package main

import (
	"fmt"
	"os"

	"finsight/internal/cli"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; variables already in the environment win
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
