package main

import "github.com/teamplan/scheduler/cmd"

func main() {
	cmd.Execute()
}
