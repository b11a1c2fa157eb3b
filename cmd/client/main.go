package main

import "github.com/dkeye/Roulette/internal/cli"

func main() {
	cli.Execute()
}
