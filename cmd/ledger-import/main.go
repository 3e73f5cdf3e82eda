// Package main is the entry point for ledger-import CLI.
package main

import (
	"os"

	"github.com/shunichi-ikebuchi/ledger-import-sources/cmd/ledger-import/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
