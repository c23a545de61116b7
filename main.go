package main

import "github.com/mcfleet/mcfleet/cmd"

func main() {
	cmd.Execute()
}
