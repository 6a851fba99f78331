package main

import (
	"github.com/MeKo-Tech/oryza/cmd/oryza/cmd"
)

func main() {
	cmd.Execute()
}
