package main

import (
	"github.com/base/tips/cmd"
)

func main() {
	cmd.Execute()
}
