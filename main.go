package main

import "github.com/fatali-fataliyev/finance_analytics/cmd"

func main() {
	cmd.Execute()
}
