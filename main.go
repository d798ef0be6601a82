package main

import (
	"os"

	"github.com/smazurov/pagecast/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
