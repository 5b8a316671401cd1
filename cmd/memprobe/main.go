// Command memprobe is the memory-limit fixture run by judge harnesses.
//
// It reads two integers from stdin, maps and unmaps a 10 MiB block, and prints
// the sum. When the mapping is denied it prints probe.FailureMessage and exits
// with status 1.
package main

import (
	"bufio"
	"context"
	"os"

	"memprobe/internal/probe"
)

func main() {
	out := bufio.NewWriter(os.Stdout)
	code := probe.Run(context.Background(), bufio.NewReader(os.Stdin), out, probe.NewMmapAllocator())
	_ = out.Flush()
	os.Exit(code)
}
