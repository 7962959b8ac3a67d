// Package main is the entry point for docmodel.
package main

func main() {
	Execute()
}
