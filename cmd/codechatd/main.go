package main

import (
	"os"

	"github.com/codechat/codechatd/cmd/codechatd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
