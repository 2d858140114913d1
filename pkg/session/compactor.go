package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/harun/templog/internal/observability"
	"github.com/harun/templog/internal/tracing"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Compactor compacts the session log down to its last session, handing
// the discarded sessions to an archiver first. It can run on a cron
// schedule or be triggered on demand.
type Compactor struct {
	store    *Store
	archiver RecordArchiver
	schedule string
	logger   zerolog.Logger

	cron    *cron.Cron
	running bool
	mu      sync.Mutex
}

// NewCompactor creates a compactor. archiver may be nil. schedule is a
// standard 5-field cron expression or descriptor such as "@daily"; an
// empty schedule means compaction only runs on demand.
func NewCompactor(store *Store, archiver RecordArchiver, schedule string, logger zerolog.Logger) (*Compactor, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, fmt.Errorf("invalid compaction schedule: %w", err)
		}
	}

	return &Compactor{
		store:    store,
		archiver: archiver,
		schedule: schedule,
		logger:   logger.With().Str("component", "session-compactor").Logger(),
	}, nil
}

// Start starts the compaction schedule. It is a no-op without a schedule.
func (c *Compactor) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("compactor is already running")
	}
	if c.schedule == "" {
		return nil
	}

	c.cron = cron.New()
	if _, err := c.cron.AddFunc(c.schedule, c.runScheduled); err != nil {
		return fmt.Errorf("failed to schedule compaction: %w", err)
	}
	c.cron.Start()
	c.running = true

	c.logger.Info().Str("schedule", c.schedule).Msg("Session compactor started")

	return nil
}

// Stop stops the schedule and waits for a running compaction to finish
func (c *Compactor) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	<-c.cron.Stop().Done()
	c.running = false

	c.logger.Info().Msg("Session compactor stopped")

	return nil
}

// IsRunning reports whether the schedule is active
func (c *Compactor) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// CompactNow archives every session but the last, then compacts the log.
// It returns the sessions as they were before compaction.
func (c *Compactor) CompactNow(ctx context.Context) ([]Record, error) {
	actor := tracing.GetActor(ctx)
	if actor == "" {
		actor = "unknown"
	}

	if c.archiver != nil {
		records, err := c.store.ReadSessions(ctx, false)
		if err != nil {
			observability.RecordCompactionAudit(ctx, actor, "failure", map[string]interface{}{"error": err.Error()})
			return nil, err
		}
		if len(records) > 1 {
			if _, err := c.archiver.Archive(ctx, records[:len(records)-1]); err != nil {
				observability.RecordCompactionAudit(ctx, actor, "failure", map[string]interface{}{"error": err.Error()})
				return nil, fmt.Errorf("failed to archive sessions: %w", err)
			}
		}
	}

	records, err := c.store.ReadSessions(ctx, true)
	if err != nil {
		observability.RecordCompactionAudit(ctx, actor, "failure", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	observability.RecordCompactionAudit(ctx, actor, "success", map[string]interface{}{
		"sessions": len(records),
		"archived": c.archiver != nil,
	})

	return records, nil
}

func (c *Compactor) runScheduled() {
	ctx := tracing.WithActor(context.Background(), "scheduler")
	ctx = tracing.WithTraceID(ctx, tracing.NewTraceID())

	records, err := c.CompactNow(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Scheduled compaction failed")
		return
	}

	c.logger.Info().Int("sessions", len(records)).Msg("Scheduled compaction finished")
}
