package main

import "npm-ioc-scanner/cmd"

func main() {
	cmd.Execute()
}
