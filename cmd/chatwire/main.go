package main

import (
	"fmt"
	"os"

	"github.com/chatwire/chatwire/internal/clientcli"
)

var version = "dev"

func main() {
	root := clientcli.NewRootCmd(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
