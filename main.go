package main

import "github.com/ferrumnet/ferrum-network-sub000/cmd"

func main() {
	cmd.Execute()
}
