// fitcoach is an AI fitness coach backed by a local knowledge base.
package main

import (
	"os"

	"github.com/fitcoach/fitcoach/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
