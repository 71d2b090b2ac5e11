package main

import "cncverse/cmd"

func main() {
	cmd.Execute()
}
