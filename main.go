package main

import "github.com/iksnae/copilot-archive/cmd"

func main() {
	cmd.Execute()
}
