package main

import "github.com/hadeploy/hadeploy/cmd"

func main() {
	cmd.Execute()
}
