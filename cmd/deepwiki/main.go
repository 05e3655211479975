package main

import "github.com/vietddude/deepwiki/internal/cli"

func main() {
	cli.Execute()
}
