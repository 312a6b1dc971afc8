package main

import (
	"os"

	fnindexcmder "github.com/papercomputeco/fnindex/cmd/fnindex"
)

func main() {
	cmd := fnindexcmder.NewFnindexCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
