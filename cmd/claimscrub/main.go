package main

import (
	"os"

	"github.com/solatis/claimscrub/cmd/claimscrub/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
