package main

import "github.com/dashfold/dashfold/cmd"

func main() {
	cmd.Execute()
}
