package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/harun/templog/internal/config"
	"github.com/harun/templog/internal/daemon"
	"github.com/harun/templog/internal/tracing"
	"github.com/harun/templog/pkg/gateway"
	"github.com/harun/templog/pkg/session"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	sessionsCompact  bool
	sessionsArchived bool
	sessionsFormat   string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Print recorded sessions",
	Long: `Print every session in the session log, oldest first.
With --compact, the log is then rewritten to hold only the last session.
Compaction is refused while the daemon is running; use the HTTP endpoint
GET /sessions?delete instead.`,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().BoolVar(&sessionsCompact, "compact", false, "keep only the last session after reading")
	sessionsCmd.Flags().BoolVar(&sessionsArchived, "archived", false, "print archived sessions instead of the log")
	sessionsCmd.Flags().StringVar(&sessionsFormat, "format", "json", "output format (json, cbor)")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	if sessionsFormat != "json" && sessionsFormat != "cbor" {
		return fmt.Errorf("unsupported format %q", sessionsFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg, false)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	ctx := tracing.WithTraceID(context.Background(), tracing.NewTraceID())
	ctx = tracing.WithActor(ctx, "cli:"+os.Getenv("USER"))

	var records []session.Record
	if sessionsArchived {
		records, err = listArchived(ctx, cfg, log.GetZerolog())
	} else {
		records, err = readSessions(ctx, afero.NewOsFs(), cfg, sessionsCompact, log.GetZerolog())
	}
	if err != nil {
		return err
	}

	return writeSessions(cmd.OutOrStdout(), sessionsFormat, records)
}

func readSessions(ctx context.Context, fs afero.Fs, cfg *config.Config, compact bool, log zerolog.Logger) ([]session.Record, error) {
	if compact {
		if pid, err := daemon.ReadPID(fs, cfg.PIDPath()); err == nil && pid != os.Getpid() && daemon.ProcessAlive(pid) {
			return nil, fmt.Errorf("daemon is running (pid %d), refusing to compact the log", pid)
		}
	}

	store, err := session.Open(fs, cfg.SessionLogPath(), session.WithLogger(log))
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if !compact {
		return store.ReadSessions(ctx, false)
	}

	var archiver session.RecordArchiver
	if cfg.Archive.Enabled {
		a, err := session.NewArchiver(cfg.Archive.Path, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		defer a.Close()
		archiver = a
	}

	compactor, err := session.NewCompactor(store, archiver, "", log)
	if err != nil {
		return nil, err
	}
	return compactor.CompactNow(ctx)
}

func listArchived(ctx context.Context, cfg *config.Config, log zerolog.Logger) ([]session.Record, error) {
	if !cfg.Archive.Enabled {
		return nil, fmt.Errorf("archive is disabled")
	}

	a, err := session.NewArchiver(cfg.Archive.Path, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer a.Close()

	return a.List(ctx)
}

func writeSessions(w io.Writer, format string, records []session.Record) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case "cbor":
		data, err = gateway.MarshalCBOR(records)
	default:
		data, err = json.MarshalIndent(records, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}

	_, err = w.Write(data)
	return err
}
