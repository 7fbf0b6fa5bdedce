package main

import (
	"scalr-migrate/cmd"
)

func main() {
	cmd.Execute()
}
