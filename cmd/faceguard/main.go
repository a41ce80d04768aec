package main

import "github.com/vietddude/faceguard/internal/cli"

func main() {
	cli.Execute()
}
