package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/harun/templog/internal/config"
	"github.com/harun/templog/internal/logger"
	"github.com/harun/templog/internal/observability"
	"github.com/harun/templog/internal/tracing"
	"github.com/harun/templog/pkg/gateway"
	"github.com/harun/templog/pkg/sampler"
	"github.com/harun/templog/pkg/session"
	"github.com/harun/templog/pkg/timesync"
	"github.com/spf13/afero"
)

// Daemon represents the templog daemon service
type Daemon struct {
	config     *config.Config
	configPath string
	logger     *logger.Logger
	fs         afero.Fs
	clock      clock.Clock
	source     sampler.Source

	store     *session.Store
	archiver  *session.Archiver
	compactor *session.Compactor
	sampler   *sampler.Sampler
	server    *gateway.Server
	watcher   *config.Watcher
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	fatalOnce sync.Once
	fatal     chan error

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Option configures a Daemon
type Option func(*Daemon)

// WithFs sets the filesystem holding the session log and PID file
func WithFs(fs afero.Fs) Option {
	return func(d *Daemon) {
		d.fs = fs
	}
}

// WithClock sets the clock used for session start times and sampling
func WithClock(clk clock.Clock) Option {
	return func(d *Daemon) {
		d.clock = clk
	}
}

// WithSource overrides the configured sample source
func WithSource(src sampler.Source) Option {
	return func(d *Daemon) {
		d.source = src
	}
}

// WithConfigPath enables reloading the log level when the file changes
func WithConfigPath(path string) Option {
	return func(d *Daemon) {
		d.configPath = path
	}
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
		fs:     afero.NewOsFs(),
		clock:  clock.New(),
		ctx:    ctx,
		cancel: cancel,
		fatal:  make(chan error, 1),
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := tracing.InitOpenTelemetry("templog-daemon"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
	} else {
		d.tracingEnabled = true
	}

	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			log.Warn().Err(err).Msg("Failed to open audit log, auditing to stderr")
		}
	}

	if d.source == nil {
		src, err := sampler.NewSource(cfg.Sampler.Source, d.fs, cfg.Sampler.Path, cfg.Sampler.StaticValue)
		if err != nil {
			cancel()
			return nil, err
		}
		d.source = src
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// Start waits for the clock, opens a new session and starts sampling
// and serving. On failure everything started so far is torn down.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = d.clock.Now()
	d.mu.Unlock()

	if err := d.start(); err != nil {
		d.shutdown()
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		return err
	}
	return nil
}

func (d *Daemon) start() error {
	ctx := tracing.WithTraceID(d.ctx, tracing.NewTraceID())
	ctx = tracing.WithActor(ctx, "daemon")
	log := tracing.LoggerFromContext(ctx, d.logger.GetZerolog())
	log.Info().Msg("Starting templog daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := timesync.WaitForSync(ctx, d.clock, d.config.MinValidTime(), d.config.SyncTimeout(), log); err != nil {
		return fmt.Errorf("failed to sync clock: %w", err)
	}

	store, err := session.Open(d.fs, d.config.SessionLogPath(),
		session.WithClock(d.clock),
		session.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("failed to open session log: %w", err)
	}
	d.store = store

	if err := store.BeginSession(ctx); err != nil {
		return fmt.Errorf("failed to begin session: %w", err)
	}
	startAt, _ := store.Current()
	observability.RecordSessionAudit(ctx, "session_started", map[string]interface{}{
		"start_at": startAt,
	})

	var archiver session.RecordArchiver
	if d.config.Archive.Enabled {
		a, err := session.NewArchiver(d.config.Archive.Path, log)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		d.archiver = a
		archiver = a
	}

	compactor, err := session.NewCompactor(store, archiver, d.config.Storage.CompactSchedule, log)
	if err != nil {
		return err
	}
	if err := compactor.Start(); err != nil {
		return fmt.Errorf("failed to start compactor: %w", err)
	}
	d.compactor = compactor

	var onSample func(uint8, time.Time)
	if d.config.HTTP.Enabled {
		server, err := gateway.NewServer(gateway.Config{
			Host:      d.config.HTTP.Host,
			Port:      d.config.HTTP.Port,
			AuthToken: d.config.HTTP.AuthToken,
			RateLimit: d.config.HTTP.RateLimit,
			Sessions:  store,
			Compactor: compactor,
			Clock:     d.clock,
			Logger:    log,
		})
		if err != nil {
			return fmt.Errorf("failed to create HTTP server: %w", err)
		}
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		d.server = server

		onSample = func(value uint8, at time.Time) {
			if current, ok := store.Current(); ok {
				server.Broadcaster().SampleRecorded(current, value, at)
			}
		}
	}

	smp, err := sampler.New(sampler.Config{
		Source:   d.source,
		Appender: store,
		Interval: d.config.SampleInterval(),
		Schedule: d.config.Sampler.Schedule,
		OnSample: onSample,
		Clock:    d.clock,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	d.sampler = smp

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := smp.Run(d.ctx); err != nil {
			log.Error().Err(err).Msg("Sampler failed, stopping daemon")
			d.fail(err)
		}
	}()

	if d.configPath != "" {
		watcher, err := config.NewWatcher(config.WatcherConfig{
			Path:     d.configPath,
			OnChange: d.applyConfig,
			Logger:   log,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create config watcher")
		} else if err := watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start config watcher")
		} else {
			d.watcher = watcher
		}
	}

	log.Info().
		Str("log", store.Path()).
		Uint64("session", startAt).
		Bool("http", d.server != nil).
		Msg("templog daemon started")

	return nil
}

// Stop gracefully stops the daemon
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping templog daemon")
	err := d.shutdown()
	d.logger.Info().Msg("templog daemon stopped")

	return err
}

// shutdown releases everything start acquired, in reverse order
func (d *Daemon) shutdown() error {
	var errs []error

	d.cancel()
	d.wg.Wait()

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.server != nil {
		if err := d.server.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.compactor != nil {
		if err := d.compactor.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.archiver != nil {
		if err := d.archiver.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.lifecycle.Stop(); err != nil {
		errs = append(errs, err)
	}

	if d.tracingEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to shutdown tracing")
		}
	}

	return errors.Join(errs...)
}

// fail records a fatal error; Wait returns it
func (d *Daemon) fail(err error) {
	d.fatalOnce.Do(func() {
		d.fatal <- err
	})
}

func (d *Daemon) applyConfig(cfg *config.Config) {
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		d.logger.Warn().Err(err).Msg("Ignoring invalid log level")
		return
	}
	d.logger.Info().Str("level", cfg.Logging.Level).Msg("Log level updated")
}

// Status represents daemon status
type Status struct {
	Running      bool
	Uptime       time.Duration
	StartTime    time.Time
	SessionStart uint64
	LogSize      int64
	LiveClients  int
}

// Status returns the current daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = d.clock.Since(d.startTime)
		status.StartTime = d.startTime
		if d.store != nil {
			status.SessionStart, _ = d.store.Current()
			status.LogSize, _ = d.store.Size()
		}
		if d.server != nil {
			status.LiveClients = d.server.ClientCount()
		}
	}

	return status
}

// Wait blocks until SIGINT/SIGTERM or a fatal error, then stops the
// daemon. It returns the fatal error, if any.
func (d *Daemon) Wait() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var fatal error
	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case fatal = <-d.fatal:
	}

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
	return fatal
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetStore returns the session log, nil before Start
func (d *Daemon) GetStore() *session.Store {
	return d.store
}

// GetServer returns the HTTP server, nil when disabled
func (d *Daemon) GetServer() *gateway.Server {
	return d.server
}

// GetCompactor returns the compactor, nil before Start
func (d *Daemon) GetCompactor() *session.Compactor {
	return d.compactor
}
