package cli

import (
	"fmt"

	"github.com/mfell/voicenotes/internal/config"
	"github.com/mfell/voicenotes/internal/platform"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSetupCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create a starter config file and check API credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := platform.ResolveConfigPath(app.configPath)
			if err != nil {
				return err
			}

			if err := config.WriteStarter(path); err != nil {
				app.log().Info("config file already present", zap.String("path", path))
				fmt.Fprintf(cmd.OutOrStdout(), "Config already exists at %s\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Starter config written to %s\n", path)
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			if cfg.ResolveKey() == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No API key found. Set OPENAI_API_KEY or add api.key to the config.")
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), "API key found; ready to transcribe.")
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	cmd.Flags().StringVar(&app.configPath, "config", app.configPath, "Path to the config file")

	return cmd
}
