package main

import "github.com/facegate/rollcall/cmd"

func main() {
	cmd.Execute()
}
