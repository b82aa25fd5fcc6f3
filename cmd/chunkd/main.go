// Command chunkd runs a content-addressed chunk storage node.
package main

import (
	"fmt"
	"os"

	"github.com/bitfsorg/chunkd/config"
)

func main() {
	if err := newRootCmd(config.Environ()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chunkd: %v\n", err)
		os.Exit(1)
	}
}
