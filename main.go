/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "mathbot/cmd"

func main() {
	cmd.Execute()
}
