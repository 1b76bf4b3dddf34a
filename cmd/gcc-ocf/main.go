// Command gcc-ocf is the CLI entry point for the compression framework.
// All command wiring lives in the cli package.
package main

import "github.com/javanhut/gcc-ocf/cli"

func main() {
	cli.Execute()
}
