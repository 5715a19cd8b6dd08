package commands

import (
	"finetune-backend/pkg/api"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <fine-tune-id>",
		Short: "Follow the events of a fine-tune until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFor(cmd)
			ctx := cmd.Context()

			spinner := progressbar.NewOptions(-1,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("waiting for events"),
				progressbar.OptionSpinnerType(14),
				progressbar.OptionClearOnFinish(),
			)

			err := client.StreamEvents(ctx, args[0], func(e api.FineTuneEvent) error {
				_ = spinner.Clear()
				cmd.Println(formatEvent(e))
				spinner.Describe(e.Message)
				return spinner.Add(1)
			})
			_ = spinner.Finish()
			if err != nil {
				return err
			}

			status, err := client.GetStatus(ctx, args[0])
			if err != nil {
				return err
			}
			cmd.Printf("Fine-tune finished: %s\n", status)
			return nil
		},
	}
}
