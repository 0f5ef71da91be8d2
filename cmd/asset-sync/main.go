package main

import (
	"go-asset-sync/cmd/asset-sync/cmd"
)

func main() {
	cmd.Execute()
}
