// Command cachesim replays a memory trace against a set-associative cache
// and prints the history of every cache line.
//
// Usage:
//
//	cachesim [flags] <trace>
//	cachesim serve [flags] <trace>
//
// A trace is a local file or an s3://bucket/key URL. Its first five lines
// give the address size, the block size (offset bits), the number of lines,
// the associativity and the replacement strategy (LRU, LFU or First). Every
// following line is a hexadecimal address.
//
// Example:
//
//	# Print the line table and the hit/miss/eviction summary
//	cachesim trace.txt
//
//	# Check the counts against the Akita directory and record to SQLite
//	cachesim --verify --record results trace.txt
package main

import (
	"os"

	"github.com/tebeka/atexit"
)

func main() {
	atexit.Exit(Execute(os.Args[1:], os.Stdout, os.Stderr))
}
