package main

import "github.com/jmcleod/hrclient/cmd/hrclient/cmd"

func main() {
	cmd.Execute()
}
