package main

import "toolhub/cmd"

func main() {
	cmd.Execute()
}
