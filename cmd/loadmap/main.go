package main

import "github.com/mvp-joe/loadmap/internal/cli"

func main() {
	cli.Execute()
}
