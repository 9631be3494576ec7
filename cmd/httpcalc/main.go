// Command httpcalc serves the calculator over HTTP and, optionally, MQTT.
package main

import (
	"os"

	"github.com/xizhibei/go-httpcalc/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand(config.New()).Execute(); err != nil {
		os.Exit(1)
	}
}
