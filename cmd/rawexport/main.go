// rawexport - Mass-spectrometry scan exporter
package main

import (
	"fmt"
	"os"

	"github.com/ChrisMcGann/rawexport/cmd/rawexport/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
