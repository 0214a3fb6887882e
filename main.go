package main

import "github.com/deploymenttheory/atomicfs/cmd/atomicfs"

func main() {
	atomicfs.Execute()
}
