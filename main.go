package main

import "github.com/kozaktomas/attendance/cmd"

func main() {
	cmd.Execute()
}
