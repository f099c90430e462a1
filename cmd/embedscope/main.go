package main

import "github.com/todmy/embedscope/internal/cli"

func main() {
	cli.Execute()
}
