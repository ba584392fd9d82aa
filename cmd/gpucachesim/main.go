// Command gpucachesim replays synthetic frame workloads against the
// software device and reports how the caches behaved.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
