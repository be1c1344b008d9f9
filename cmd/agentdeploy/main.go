package main

import "github.com/rzbill/agentdeploy/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
