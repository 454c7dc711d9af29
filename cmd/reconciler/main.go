package main

import (
	"os"

	"bank-reconciliation-service/cmd/reconciler/cmd"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Set version information
	cmd.SetVersionInfo(version, commit, date)

	root := cmd.NewRootCommand()
	if err := root.Execute(); err != nil {
		verbose, _ := root.PersistentFlags().GetBool("verbose")
		os.Exit(cmd.NewCLIErrorHandler(os.Stderr, verbose).HandleError(err))
	}
}
