package main

import "github.com/ValentinKolb/dTab/cmd"

func main() {
	cmd.Execute()
}
