// Command goaggregate runs aggregations defined in a YAML file between NATS subjects.
package main

import (
	"os"

	"github.com/spf13/afero"
)

func main() {
	if err := BuildCli(afero.NewOsFs()).Execute(); err != nil {
		os.Exit(1)
	}
}
