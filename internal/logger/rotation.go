package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/spf13/afero"
)

// RotatingWriter is a writer that rotates log files by size
type RotatingWriter struct {
	mu          sync.Mutex
	fs          afero.Fs
	clock       clock.Clock
	filename    string
	maxSize     int64 // bytes
	maxAge      int   // days
	compress    bool
	currentFile afero.File
	currentSize int64
	bg          sync.WaitGroup
}

// NewRotatingWriter creates a new rotating writer
func NewRotatingWriter(fs afero.Fs, filename string, maxSizeMB int, maxAge int, compress bool) (*RotatingWriter, error) {
	return newRotatingWriter(fs, clock.New(), filename, int64(maxSizeMB)*1024*1024, maxAge, compress)
}

func newRotatingWriter(fs afero.Fs, clk clock.Clock, filename string, maxSize int64, maxAge int, compress bool) (*RotatingWriter, error) {
	file, err := openAppend(fs, filename)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	rw := &RotatingWriter{
		fs:          fs,
		clock:       clk,
		filename:    filename,
		maxSize:     maxSize,
		maxAge:      maxAge,
		compress:    compress,
		currentFile: file,
		currentSize: info.Size(),
	}

	rw.cleanup()

	return rw, nil
}

// Write writes data to the log file, rotating if necessary
func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentSize > 0 && w.currentSize+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err = w.currentFile.Write(p)
	w.currentSize += int64(n)
	return n, err
}

// Close closes the current log file and waits for pending compression
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.bg.Wait()
	if w.currentFile != nil {
		err := w.currentFile.Close()
		w.currentFile = nil
		return err
	}
	return nil
}

func (w *RotatingWriter) rotate() error {
	if err := w.currentFile.Close(); err != nil {
		return err
	}

	timestamp := w.clock.Now().Format("20060102-150405.000")
	rotatedName := fmt.Sprintf("%s.%s", w.filename, timestamp)

	if err := w.fs.Rename(w.filename, rotatedName); err != nil {
		return err
	}

	if w.compress {
		w.bg.Add(1)
		go func() {
			defer w.bg.Done()
			_ = w.compressFile(rotatedName)
		}()
	}

	file, err := openAppend(w.fs, w.filename)
	if err != nil {
		return err
	}

	w.currentFile = file
	w.currentSize = 0

	w.cleanup()

	return nil
}

// compressFile gzips a rotated file and removes the original
func (w *RotatingWriter) compressFile(filename string) error {
	src, err := w.fs.Open(filename)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := w.fs.Create(filename + ".gz")
	if err != nil {
		return err
	}
	defer dst.Close()

	gzw := gzip.NewWriter(dst)
	if _, err := io.Copy(gzw, src); err != nil {
		gzw.Close()
		return err
	}
	if err := gzw.Close(); err != nil {
		return err
	}

	return w.fs.Remove(filename)
}

// cleanup removes rotated files older than maxAge days
func (w *RotatingWriter) cleanup() {
	if w.maxAge <= 0 {
		return
	}

	dir := filepath.Dir(w.filename)
	base := filepath.Base(w.filename)

	files, err := afero.Glob(w.fs, filepath.Join(dir, base+".*"))
	if err != nil {
		return
	}

	cutoff := w.clock.Now().AddDate(0, 0, -w.maxAge)
	for _, file := range files {
		info, err := w.fs.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = w.fs.Remove(file)
			if !strings.HasSuffix(file, ".gz") {
				_ = w.fs.Remove(file + ".gz")
			}
		}
	}
}

func openAppend(fs afero.Fs, filename string) (afero.File, error) {
	if err := fs.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := fs.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}
