package main

import "bookhaven/cmd/bookhaven/commands"

func main() {
	commands.Execute()
}
