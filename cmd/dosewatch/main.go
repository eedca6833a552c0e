package main

import (
	"os"
)

var (
	Version   string = "0.1.0-dev"
	GitCommit string = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
