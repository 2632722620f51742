package main

import "github.com/jjudge-oj/accounts/cmd"

func main() {
	cmd.Execute()
}
