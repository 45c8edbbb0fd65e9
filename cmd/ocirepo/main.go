package main

import "github.com/aweris/ocirepo/cmd/ocirepo/cmd"

func main() {
	cmd.Execute()
}
