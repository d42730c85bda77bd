package main

import "github.com/emrgen/pagenote/cmd"

func main() {
	cmd.Execute()
}
