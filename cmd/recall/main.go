package main

import (
	"os"

	_ "time/tzdata"

	"recall/internal/commands"
	appLog "recall/internal/log"
)

func main() {
	if err := commands.New().Execute(); err != nil {
		appLog.Error("recall failed", err)
		os.Exit(1)
	}
}
