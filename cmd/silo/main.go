// Command silo loads entity files into a world and runs profiling workloads
// against it.
//
// Profiling:
// go build ./cmd/silo
// ./silo simulate --profile mem
// go tool pprof -http=":8000" -nodefraction=0.001 ./silo mem.pprof
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
