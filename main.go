package main

import (
	"github.com/liquid-miners/lm-engine/cmd"
)

func main() {
	cmd.Execute()
}
