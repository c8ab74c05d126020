package main

import "github.com/pawlink/pawlink-chat/cli"

func main() {
	cli.Execute()
}
