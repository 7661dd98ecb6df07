package main

import (
	"os"

	"github.com/staffmanagement/authservice/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
