// Command attackgraph builds attack graphs for a docker-compose deployment,
// ranks services for defence and deploys honeypots.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
