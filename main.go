package main

import "github.com/StinkyLord/depscan/cmd"

func main() {
	cmd.Execute()
}
