package commands

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultURL = "http://localhost:8001"

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "finetunectl",
		Short: "finetunectl submits and follows fine-tunes on finetune-backend",
		Long: `finetunectl is the command-line interface for finetune-backend.

Training data is read from JSONL files with one {"prompt": ..., "completion": ...}
object per line.

  finetunectl submit --name capitals --file capitals.jsonl
  finetunectl watch <fine-tune-id>
  finetunectl complete <fine-tune-id> --prompt "Capital of France?"

The API endpoint defaults to $FINETUNE_API_URL, or ` + defaultURL + `.`,
		SilenceUsage: true,
	}

	url := os.Getenv("FINETUNE_API_URL")
	if url == "" {
		url = defaultURL
	}
	root.PersistentFlags().String("url", url, "finetune-backend URL")

	root.AddCommand(
		newSubmitCommand(),
		newListCommand(),
		newStatusCommand(),
		newEventsCommand(),
		newWatchCommand(),
		newModelCommand(),
		newCompleteCommand(),
	)

	return root
}

func clientFor(cmd *cobra.Command) *Client {
	url, _ := cmd.Flags().GetString("url")
	return NewClient(url)
}
