package session

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// logFile is the durable byte stream behind a Store. Append is the only
// way bytes are added; it positions at the end of the stream itself.
type logFile struct {
	f afero.File
}

// openLogFile opens path for reading and writing, creating it (and its
// directory) when missing.
func openLogFile(fs afero.Fs, path string) (*logFile, error) {
	if _, err := fs.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat session log: %w", err)
		}
		log.Error().Str("path", path).Msg("Recreating session log file")

		if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create session log directory: %w", err)
		}
	}

	f, err := fs.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open session log: %w", err)
	}

	return &logFile{f: f}, nil
}

// Size returns the current length of the stream
func (l *logFile) Size() (int64, error) {
	info, err := l.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat session log: %w", err)
	}
	return info.Size(), nil
}

// Append writes p at the end of the stream
func (l *logFile) Append(p []byte) error {
	if _, err := l.f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek session log: %w", err)
	}
	if _, err := l.f.Write(p); err != nil {
		return fmt.Errorf("failed to append to session log: %w", err)
	}
	return nil
}

// Reader returns a reader over the first size bytes of the stream. It
// does not move the write position.
func (l *logFile) Reader(size int64) io.Reader {
	return io.NewSectionReader(l.f, 0, size)
}

// Truncate cuts the stream to size bytes
func (l *logFile) Truncate(size int64) error {
	if err := l.f.Truncate(size); err != nil {
		return fmt.Errorf("failed to truncate session log: %w", err)
	}
	return nil
}

// Sync flushes the stream to durable storage
func (l *logFile) Sync() error {
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync session log: %w", err)
	}
	return nil
}

// Close closes the underlying file
func (l *logFile) Close() error {
	return l.f.Close()
}
