package main

import "anchorproto/anchord/cmd"

func main() {
	cmd.Execute()
}
