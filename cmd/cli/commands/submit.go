package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"finetune-backend/pkg/api"

	"github.com/spf13/cobra"
)

// readPairs loads a JSONL file of prompt/completion objects. Blank lines are
// skipped.
func readPairs(path string) ([]api.TrainingPair, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var pairs []api.TrainingPair
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var pair struct {
			Prompt     string `json:"prompt"`
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal([]byte(text), &pair); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		pairs = append(pairs, api.TrainingPair{Prompt: pair.Prompt, Completion: pair.Completion})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return pairs, nil
}

func newSubmitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a new fine-tune",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			name, _ := flags.GetString("name")
			file, _ := flags.GetString("file")
			validation, _ := flags.GetString("validation-file")
			model, _ := flags.GetString("model")
			epochs, _ := flags.GetInt64("epochs")
			suffix, _ := flags.GetString("model-suffix")

			pairs, err := readPairs(file)
			if err != nil {
				return err
			}

			settings := api.FineTuneSettings{Model: model, ModelSuffix: suffix}
			if epochs > 0 {
				settings.Epochs = &epochs
			}
			if validation != "" {
				settings.ValidationData, err = readPairs(validation)
				if err != nil {
					return err
				}
			}

			id, err := clientFor(cmd).CreateFineTune(cmd.Context(), api.CreateFineTuneRequest{
				Name:     name,
				Pairs:    pairs,
				Settings: settings,
			})
			if err != nil {
				return err
			}

			cmd.Printf("Fine-tune queued with %d training pairs\n", len(pairs))
			cmd.Println(id.String())
			return nil
		},
	}

	cmd.Flags().String("name", "", "name of the fine-tune (letters, digits, '-' and '_')")
	cmd.Flags().String("file", "", "JSONL file with training pairs")
	cmd.Flags().String("validation-file", "", "optional JSONL file with validation pairs")
	cmd.Flags().String("model", "", "base model (server default when empty)")
	cmd.Flags().Int64("epochs", 0, "number of epochs (remote default when 0)")
	cmd.Flags().String("model-suffix", "", "suffix added to the trained model name")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
