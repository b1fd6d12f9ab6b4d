package main

import "voxflow/cmd/voxflow/cmd"

func main() {
	cmd.Execute()
}
