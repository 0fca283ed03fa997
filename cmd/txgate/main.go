package main

import "github.com/vietddude/txgate/internal/cli"

func main() {
	cli.Execute()
}
