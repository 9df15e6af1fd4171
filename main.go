package main

import (
	"os"

	"github.com/conneroisu/t4go/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
