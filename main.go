package main

import "github.com/deploymenttheory/go-rawcopy/cmd"

func main() {
	cmd.Execute()
}
