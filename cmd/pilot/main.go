package main

import (
	"github.com/marcus/pilot/cmd/pilot/commands"
)

func main() {
	commands.Execute()
}
