package main

import (
	"os"

	"github.com/yoanbernabeu/testfleet/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
