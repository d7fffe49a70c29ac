package main

import "github.com/kamusis/curricula/cmd"

func main() {
	cmd.Execute()
}
