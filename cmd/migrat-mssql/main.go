package main

import (
	"github.com/pressly/migrat-mssql/internal/cli"
)

func main() {
	cli.Main()
}
