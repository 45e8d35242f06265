package main

import "github.com/vibast-solutions/ms-go-ledger/cmd"

func main() {
	cmd.Execute()
}
