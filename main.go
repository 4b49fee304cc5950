package main

import (
	"os"

	"github.com/telhawk-systems/tracelens/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
