package main

import "github.com/vietddude/verdict/internal/cli"

func main() {
	cli.Execute()
}
