package main

import "dandi-api/cmd"

func main() {
	cmd.Execute()
}
