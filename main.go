package main

import "github.com/deploymenttheory/go-zdb/cmd"

func main() {
	cmd.Execute()
}
