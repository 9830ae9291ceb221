// cmd/bci/main.go
package main

import (
	"bci/internal/app"
	"bci/internal/appshell"
)

func main() { appshell.Main(app.RunContext) }
