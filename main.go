package main

import "testpilot/internal/app"

func main() {
	app.Main()
}
