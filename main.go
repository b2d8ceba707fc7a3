package main

import "github.com/KaramelBytes/docsync/cmd"

func main() {
	cmd.Execute()
}
