package main

import (
	"os"

	"es3/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}