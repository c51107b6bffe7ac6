package main

import (
	"os"

	"github.com/tempora-app/tempora/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
