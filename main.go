package main

import "FocusFM/cmd"

func main() {
	cmd.Execute()
}
