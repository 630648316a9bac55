package main

import "github.com/gauntletci/gauntlet/internal/cli"

func main() {
	cli.Execute()
}
