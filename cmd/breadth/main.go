package main

import (
	"os"

	"github.com/zhaoqi/breadth/cmd/breadth/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
