package main

import "github.com/cosimlab/cosim/cmd/cosim/cmd"

func main() {
	cmd.Execute()
}
