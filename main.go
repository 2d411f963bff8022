package main

import (
	"github.com/luma/mrcp/cmd"
)

func main() {
	cmd.Execute()
}
