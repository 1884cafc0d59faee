package main

import "github.com/drgolem/serialmic/cmd"

func main() {
	cmd.Execute()
}
