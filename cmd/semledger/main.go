// Command semledger operates a semantically-addressed append-only ledger.
package main

import (
	"context"
	"os"

	"github.com/roach88/semledger/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
