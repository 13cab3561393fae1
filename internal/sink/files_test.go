package sink

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return ts
}

func TestFileManager_SharedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewFileManager(dir, false, []string{"serverA", "serverB"})
	if err := m.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	now := mustTime(t, "2024-03-01T10:00:00Z")
	fa, err := m.Writer("serverA", now)
	if err != nil {
		t.Fatalf("Writer serverA: %v", err)
	}
	fb, err := m.Writer("serverB", now)
	if err != nil {
		t.Fatalf("Writer serverB: %v", err)
	}
	if fa != fb {
		t.Fatal("shared mode returned distinct handles per source")
	}
	if want := filepath.Join(dir, "events_2024-03-01.log"); fa.Name() != want {
		t.Fatalf("file = %q, want %q", fa.Name(), want)
	}
}

func TestFileManager_PerSourceDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewFileManager(dir, true, []string{"serverA", "serverB"})
	if err := m.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	now := mustTime(t, "2024-03-01T10:00:00Z")
	fa, err := m.Writer("serverA", now)
	if err != nil {
		t.Fatalf("Writer serverA: %v", err)
	}
	if want := filepath.Join(dir, "serverA", "events_2024-03-01.log"); fa.Name() != want {
		t.Fatalf("file = %q, want %q", fa.Name(), want)
	}

	if _, err := m.Writer("unknown", now); err == nil {
		t.Fatal("Writer for unconfigured source succeeded, want error")
	}
}

func TestFileManager_RotatesOnDateChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewFileManager(dir, false, []string{"serverA"})
	if err := m.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	before := mustTime(t, "2024-03-01T23:59:59Z")
	after := mustTime(t, "2024-03-02T00:00:01Z")

	f1, err := m.Writer("serverA", before)
	if err != nil {
		t.Fatalf("Writer before midnight: %v", err)
	}
	if _, err := f1.WriteString("first\r\n"); err != nil {
		t.Fatalf("write: %v", err)
	}

	f2, err := m.Writer("serverA", after)
	if err != nil {
		t.Fatalf("Writer after midnight: %v", err)
	}
	if f1.Name() == f2.Name() {
		t.Fatalf("no rotation across midnight, both %q", f1.Name())
	}
	if _, err := m.Writer("serverA", after); err != nil {
		t.Fatalf("Writer same date again: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "events_2024-03-01.log"))
	if err != nil {
		t.Fatalf("read rotated-out file: %v", err)
	}
	if string(data) != "first\r\n" {
		t.Fatalf("rotated-out file = %q, want %q", data, "first\r\n")
	}
}

func TestFileManager_AppendsAcrossReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := mustTime(t, "2024-03-01T10:00:00Z")

	for _, line := range []string{"one\r\n", "two\r\n"} {
		m := NewFileManager(dir, false, nil)
		f, err := m.Writer("serverA", now)
		if err != nil {
			t.Fatalf("Writer: %v", err)
		}
		if _, err := f.WriteString(line); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := m.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "events_2024-03-01.log"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "one\r\ntwo\r\n" {
		t.Fatalf("file = %q, want %q", data, "one\r\ntwo\r\n")
	}
}
