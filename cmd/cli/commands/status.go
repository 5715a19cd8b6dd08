package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"finetune-backend/pkg/api"

	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List fine-tunes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")

			fineTunes, err := clientFor(cmd).ListFineTunes(cmd.Context(), status, limit)
			if err != nil {
				return err
			}

			if len(fineTunes) == 0 {
				cmd.Println("No fine-tunes found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tMODEL\tCREATED")
			for _, f := range fineTunes {
				model := f.ModelName
				if model == "" {
					model = f.BaseModel
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", f.Id, f.Name, f.Status, model, f.CreationTime.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().String("status", "", "only show fine-tunes with this status (QUEUED, SUBMITTED, SUCCEEDED, FAILED)")
	cmd.Flags().Int("limit", 20, "maximum number of fine-tunes to show")

	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <fine-tune-id>",
		Short: "Show a fine-tune and its live status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFor(cmd)

			fineTune, err := client.GetFineTune(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			status, err := client.GetStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			cmd.Printf("Name:    %s\n", fineTune.Name)
			cmd.Printf("State:   %s\n", fineTune.Status)
			cmd.Printf("Remote:  %s\n", status)
			cmd.Printf("Base:    %s\n", fineTune.BaseModel)
			if fineTune.JobId != "" {
				cmd.Printf("Job:     %s\n", fineTune.JobId)
			}
			if fineTune.ModelName != "" {
				cmd.Printf("Model:   %s\n", fineTune.ModelName)
			}
			if fineTune.Error != "" {
				cmd.Printf("Error:   %s\n", fineTune.Error)
			}
			return nil
		},
	}
}

func formatEvent(e api.FineTuneEvent) string {
	return fmt.Sprintf("%s [%s] %s", e.CreatedAt.Local().Format(time.DateTime), e.Level, e.Message)
}

func newEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "events <fine-tune-id>",
		Short: "Print the events reported so far",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := clientFor(cmd).GetEvents(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, e := range events {
				cmd.Println(formatEvent(e))
			}
			return nil
		},
	}
}

func newModelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "model <fine-tune-id>",
		Short: "Print the trained model name once it is assigned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := clientFor(cmd).GetModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !res.Ready {
				cmd.Println("Model name not assigned yet.")
				return nil
			}
			cmd.Println(res.ModelName)
			return nil
		},
	}
}

func newCompleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <fine-tune-id>",
		Short: "Run a completion against the trained model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, _ := cmd.Flags().GetString("prompt")
			maxTokens, _ := cmd.Flags().GetInt64("max-tokens")

			req := api.CompletionRequest{Prompt: prompt}
			if maxTokens > 0 {
				req.MaxTokens = &maxTokens
			}

			text, err := clientFor(cmd).Complete(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			cmd.Println(text)
			return nil
		},
	}

	cmd.Flags().String("prompt", "", "prompt text, without the training suffix")
	cmd.Flags().Int64("max-tokens", 0, "maximum tokens to generate (remote default when 0)")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}
