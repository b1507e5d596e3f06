package main

import (
	"os"

	"github.com/kamipay/pixrouter/cmd/pixrouter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
