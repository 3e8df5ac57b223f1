package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// newCleanCmd runs the cleaning pipeline over existing text: a file
// argument, or stdin when the argument is "-" or absent. Useful for
// reprocessing transcripts saved before a dictionary or threshold change.
func newCleanCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean [file]",
		Short: "Run the transcript cleaning pipeline over a text file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if len(args) == 0 || args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			} else {
				raw, err = os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("read input file: %w", err)
				}
			}

			cleaned, report := app.newPostProcessor().Process(cmd.Context(), string(raw), app.language)
			app.logCleaningReport(report)

			fmt.Fprintln(cmd.OutOrStdout(), cleaned)
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindAPIFlags(cmd, app)
	bindLanguageFlag(cmd, app)

	return cmd
}
