package cli

import (
	"fmt"

	"github.com/harun/templog/internal/config"
	"github.com/spf13/cobra"
)

var interactive bool

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the configuration file",
	Long: `Write the templog configuration file.
With --interactive, an interactive configuration wizard asks for each setting,
starting from the current configuration.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "run the interactive configuration wizard")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	cfg, err := loader.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}

	if interactive {
		wizard := config.NewWizard(cmd.InOrStdin(), cmd.OutOrStdout())
		cfg, err = wizard.Run(cfg)
		if err != nil {
			return fmt.Errorf("configuration failed: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nConfiguration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(out, "\nYou can now start templog with: templog start")

	return nil
}
