package main

import (
	"fmt"
	"os"

	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		os.Exit(1)
	}
}
