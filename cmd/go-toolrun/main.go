// Package main provides the go-toolrun CLI entry point.
//
// go-toolrun launches external security and network tools, optionally
// through a privilege wrapper, streams their output and reports how each
// run ended.
package main

import (
	"os"

	"github.com/randomizedcoder/go-toolrun/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
