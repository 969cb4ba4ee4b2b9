// This program provides administrative tooling for the node: consensus
// sanity checks, block decoding, and key generation.
package main

import (
	"fmt"
	"os"

	"github.com/membercoin/membercoin/app/tooling/admin/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
