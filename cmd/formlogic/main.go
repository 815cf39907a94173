package main

import (
	"os"

	"github.com/goliatone/go-formlogic/cmd/formlogic/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
