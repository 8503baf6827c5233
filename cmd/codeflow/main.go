package main

import "codeflow/internal/cli"

func main() {
	cli.Execute()
}
