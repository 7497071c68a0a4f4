package main

import (
	"os"

	"github.com/havenfield/reconcile/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
