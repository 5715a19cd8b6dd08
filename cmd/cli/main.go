// Command finetunectl talks to the finetune-backend API.
package main

import (
	"os"

	"finetune-backend/cmd/cli/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
