package main

import (
	"github.com/atticfs/atticfs/cmd"
)

func main() {
	cmd.Execute()
}
