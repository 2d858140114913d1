package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/harun/templog/internal/observability"
	"github.com/harun/templog/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "templog.session"

var (
	// ErrClockUnavailable is returned when the clock cannot supply a
	// timestamp for a new session header.
	ErrClockUnavailable = errors.New("clock unavailable")

	// ErrReservedSample is returned by AddSample for EndOfSession, which
	// would close the open session early on the next scan.
	ErrReservedSample = errors.New("sample value 0xff is reserved")

	// ErrClosed is returned by operations on a closed Store
	ErrClosed = errors.New("session log is closed")
)

// Option configures a Store
type Option func(*Store)

// WithClock sets the clock used for session start times
func WithClock(clk clock.Clock) Option {
	return func(s *Store) {
		s.clock = clk
	}
}

// WithLogger sets the logger used by the Store
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store owns the session log file and interprets its bytes.
//
// The log format has no concurrency control of its own; Store serializes
// all operations so the sampler and readers can share one instance.
type Store struct {
	mu      sync.Mutex
	file    *logFile
	path    string
	clock   clock.Clock
	logger  zerolog.Logger
	current *uint64
	closed  bool
}

// Open opens (creating if needed) the session log at path on fs.
func Open(fs afero.Fs, path string, opts ...Option) (*Store, error) {
	observability.EnsureRegistered()

	if path == "" {
		return nil, fmt.Errorf("session log path is required")
	}

	file, err := openLogFile(fs, path)
	if err != nil {
		return nil, err
	}

	s := &Store{
		file:   file,
		path:   path,
		clock:  clock.New(),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "session-log").Logger()

	if size, err := file.Size(); err == nil {
		observability.SetLogSize(size)
		s.logger.Info().Str("path", path).Int64("size", size).Msg("Session log opened")
	}

	return s, nil
}

// Path returns the location of the log file
func (s *Store) Path() string {
	return s.path
}

// Current returns the start time of the open session, if this Store
// opened or compacted it.
func (s *Store) Current() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return 0, false
	}
	return *s.current, true
}

// Size returns the length of the log in bytes
func (s *Store) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	return s.file.Size()
}

// BeginSession closes the open session, if any, and starts a new one
// stamped with the current time. The new header is synced before
// BeginSession returns.
func (s *Store) BeginSession(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, tracerName, "session.begin")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return tracing.RecordError(span, err)
	}

	startAt, err := s.now()
	if err != nil {
		return tracing.RecordError(span, err)
	}

	size, err := s.file.Size()
	if err != nil {
		return tracing.RecordError(span, err)
	}

	var buf []byte
	if size > 0 {
		buf = append(buf, EndOfSession)
	}
	buf = AppendHeader(buf, startAt)

	if err := s.file.Append(buf); err != nil {
		return tracing.RecordError(span, err)
	}
	if err := s.file.Sync(); err != nil {
		return tracing.RecordError(span, err)
	}

	s.current = &startAt
	observability.RecordSessionStarted()
	observability.SetLogSize(size + int64(len(buf)))
	span.SetAttributes(attribute.Int64("start_at", int64(startAt)))

	logger.Info().
		Uint64("start_at", startAt).
		Bool("closed_previous", size > 0).
		Msg("Session started")

	return nil
}

// AddSample appends value to the open session and syncs it.
func (s *Store) AddSample(ctx context.Context, value uint8) error {
	if value == EndOfSession {
		return ErrReservedSample
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}

	start := time.Now()
	if err := s.file.Append([]byte{value}); err != nil {
		return err
	}
	if err := s.file.Sync(); err != nil {
		return err
	}
	observability.RecordSampleAppended(value, time.Since(start))

	s.logger.Debug().Uint8("value", value).Msg("Sample appended")

	return nil
}

// ReadSessions scans the whole log and returns every record, oldest
// first. The open session, if any, is the last element.
//
// With retainOnlyLast set and at least one record found, the log is
// rewritten to hold only the last record, left open so later AddSample
// calls extend it. The rewrite is synced before returning.
func (s *Store) ReadSessions(ctx context.Context, retainOnlyLast bool) ([]Record, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "session.read",
		attribute.Bool("retain_only_last", retainOnlyLast),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return nil, tracing.RecordError(span, err)
	}

	start := time.Now()
	size, err := s.file.Size()
	if err != nil {
		return nil, tracing.RecordError(span, err)
	}

	records := make([]Record, 0)
	scanner := NewScanner(s.file.Reader(size))
	for scanner.Next() {
		records = append(records, scanner.Record())
	}
	if err := scanner.Err(); err != nil {
		return nil, tracing.RecordError(span, fmt.Errorf("failed to read session log: %w", err))
	}
	observability.RecordScan(len(records), time.Since(start))
	span.SetAttributes(attribute.Int("sessions", len(records)))

	if !retainOnlyLast || len(records) == 0 {
		return records, nil
	}

	last := records[len(records)-1]
	if err := s.compactTo(last); err != nil {
		return nil, tracing.RecordError(span, err)
	}

	logger.Info().
		Int("discarded", len(records)-1).
		Uint64("retained_start_at", last.StartAt).
		Int("retained_samples", len(last.Temperatures)).
		Int64("previous_size", size).
		Msg("Session log compacted")

	return records, nil
}

// compactTo replaces the log with rec as its only, open, record.
func (s *Store) compactTo(rec Record) error {
	buf := EncodeRecord(make([]byte, 0, HeaderSize+len(rec.Temperatures)), rec, false)

	if err := s.file.Truncate(0); err != nil {
		return err
	}
	if err := s.file.Append(buf); err != nil {
		return err
	}
	if err := s.file.Sync(); err != nil {
		return err
	}

	startAt := rec.StartAt
	s.current = &startAt
	observability.RecordCompaction()
	observability.SetLogSize(int64(len(buf)))

	return nil
}

// Close closes the log file. Further operations return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

func (s *Store) check(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) now() (uint64, error) {
	secs := s.clock.Now().Unix()
	if secs < 0 {
		return 0, fmt.Errorf("%w: time %d is before the epoch", ErrClockUnavailable, secs)
	}
	return uint64(secs), nil
}
