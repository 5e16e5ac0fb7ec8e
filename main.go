// Package main points to the cachesim commands.
//
// For the simulator, use: go run ./cmd/cachesim <trace>
// For the strategy comparison, use: go run ./cmd/benchmark
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("cachesim - trace-driven set-associative cache simulator")
	fmt.Println("")
	fmt.Println("Usage: cachesim [flags] <trace>")
	fmt.Println("       cachesim serve [flags] <trace>")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/cachesim --help' for the full CLI.")
	fmt.Println("Run 'go run ./cmd/benchmark' to compare replacement strategies.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/cachesim' instead.")
	}
}
