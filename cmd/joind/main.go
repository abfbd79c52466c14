// Command joind runs one peer of a distributed hash-partitioned equi-join
// cohort (spec.md §6.4).
package main

import (
	"os"

	"bytedb/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
