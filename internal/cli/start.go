package cli

import (
	"fmt"

	"github.com/harun/templog/internal/config"
	"github.com/harun/templog/internal/daemon"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the templog daemon",
	Long: `Start the templog daemon in the foreground.
The daemon waits for the wall clock, opens a new session and records a
sample every interval until it receives SIGINT or SIGTERM.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	log.Debug().Str("config", cfg.Redact().String()).Msg("Configuration loaded")

	d, err := daemon.New(cfg, log, daemon.WithConfigPath(config.NewLoader(cfgFile).GetConfigPath()))
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	return d.Wait()
}
