// Command keygen prints fresh secrets for the .env file.
package main

import (
	"flag"
	"os"

	"github.com/diagnosis/agency-portal/pkg/logger"
)

func main() {
	cfg, err := ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}
	if err := Run(cfg, os.Stdout, nil, os.Stdin); err != nil {
		logger.Error("Failed to generate keys", "error", err)
		os.Exit(1)
	}
}
