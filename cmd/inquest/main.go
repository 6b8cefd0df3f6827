package main

import (
	"os"

	"github.com/inquestlabs/inquest/internal/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}
