package main

import "github.com/ValentinKolb/planb/cmd"

func main() {
	cmd.Execute()
}
