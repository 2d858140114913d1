package cli

import (
	"fmt"
	"time"

	"github.com/harun/templog/internal/daemon"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show whether the templog daemon is running and the state of the session log.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()
	out := cmd.OutOrStdout()

	pidFile := cfg.PIDPath()
	pid, err := daemon.ReadPID(fs, pidFile)
	if err != nil || !daemon.ProcessAlive(pid) {
		fmt.Fprintln(out, "Status: stopped")
	} else {
		fmt.Fprintln(out, "Status: running")
		fmt.Fprintf(out, "PID: %d\n", pid)

		// the PID file is written once at startup
		if info, err := fs.Stat(pidFile); err == nil {
			fmt.Fprintf(out, "Uptime: %s\n", formatDuration(time.Since(info.ModTime())))
		}
	}

	if info, err := fs.Stat(cfg.SessionLogPath()); err == nil {
		fmt.Fprintf(out, "Log: %s (%d bytes)\n", cfg.SessionLogPath(), info.Size())
	} else {
		fmt.Fprintf(out, "Log: %s (missing)\n", cfg.SessionLogPath())
	}

	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
