/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "relaygram/cmd"

func main() {
	cmd.Execute()
}
