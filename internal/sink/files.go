// Package sink persists routed events: rotating append-only log files plus
// optional rule-driven database inserts, written by a single consumer.
package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755

	// sharedKey keys the single handle used when per-source directories
	// are disabled.
	sharedKey = "all"
)

// FileManager owns the open log file handles. Files are keyed by UTC
// calendar date plus, when enabled, the source identity; on a date change
// the whole handle set is replaced. Not safe for concurrent use: the
// aggregator is the only writer.
type FileManager struct {
	dir       string
	perSource bool
	sources   []string
	files     map[string]*os.File
	openDate  string
}

// NewFileManager creates a manager rooted at dir. With perSource set, each
// source writes under its own subdirectory named after the source identity.
func NewFileManager(dir string, perSource bool, sources []string) *FileManager {
	return &FileManager{
		dir:       dir,
		perSource: perSource,
		sources:   sources,
		files:     make(map[string]*os.File),
	}
}

// EnsureDirs creates the target directory tree. Called once at startup;
// failure here is fatal to the process.
func (m *FileManager) EnsureDirs() error {
	if err := os.MkdirAll(m.dir, defaultDirMode); err != nil {
		return fmt.Errorf("sink: create target directory: %w", err)
	}
	if !m.perSource {
		return nil
	}
	for _, src := range m.sources {
		if err := os.MkdirAll(filepath.Join(m.dir, src), defaultDirMode); err != nil {
			return fmt.Errorf("sink: create directory for source %q: %w", src, err)
		}
	}
	return nil
}

// Writer returns the open handle for one source at the given instant,
// rotating every handle first if the UTC date has changed since the last
// call.
func (m *FileManager) Writer(source string, now time.Time) (*os.File, error) {
	date := now.UTC().Format("2006-01-02")
	if date != m.openDate {
		if err := m.rotate(date); err != nil {
			return nil, err
		}
	}

	key := sharedKey
	if m.perSource {
		key = source
	}
	f, ok := m.files[key]
	if !ok {
		return nil, fmt.Errorf("sink: no open log file for source %q", source)
	}
	return f, nil
}

func (m *FileManager) rotate(date string) error {
	for _, f := range m.files {
		f.Close()
	}

	files := make(map[string]*os.File)
	name := fileName(date)
	if m.perSource {
		for _, src := range m.sources {
			f, err := openAppend(filepath.Join(m.dir, src, name))
			if err != nil {
				for _, opened := range files {
					opened.Close()
				}
				return err
			}
			files[src] = f
		}
	} else {
		f, err := openAppend(filepath.Join(m.dir, name))
		if err != nil {
			return err
		}
		files[sharedKey] = f
	}

	m.files = files
	m.openDate = date
	return nil
}

// Close closes every open handle.
func (m *FileManager) Close() error {
	var firstErr error
	for _, f := range m.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.files = make(map[string]*os.File)
	m.openDate = ""
	return firstErr
}

func fileName(date string) string {
	return "events_" + date + ".log"
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return nil, fmt.Errorf("sink: open log file: %w", err)
	}
	return f, nil
}
