package main

import "github.com/mapperhq/mapper/cmd"

func main() {
	cmd.Execute()
}
