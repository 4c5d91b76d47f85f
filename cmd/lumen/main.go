package main

import (
	"os"

	"github.com/mna/mainer"

	"github.com/kristofer/lumen/internal/cli"
)

// version is a placeholder, the same convention the teacher pack's
// mna-nenuphar main.go uses for a value replaced at build time.
var version = "0.1.0"

func main() {
	c := cli.Cmd{BuildVersion: version}
	os.Exit(int(c.Main(os.Args, mainer.CurrentStdio())))
}
