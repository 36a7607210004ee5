// Package guard detects and reverts unintended mutation of a document the
// driven application opens as a side effect of being launched. Some
// applications silently rewrite the opened file on load; for a tool whose
// job is read-only, that is corruption to be undone, not behavior to keep.
package guard

import (
	"fmt"
	"log/slog"
	"os"
)

// AsideSuffix is appended to the document path when the mutated version is
// renamed out of the way during restore.
const AsideSuffix = ".mutated"

// Snapshot captures a document before the driven application launches.
type Snapshot struct {
	log     *slog.Logger
	path    string
	info    os.FileInfo
	content []byte
}

// Take snapshots the document's size, modification time and content.
func Take(log *slog.Logger, path string) (*Snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("snapshotting %s: %w", path, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshotting %s: %w", path, err)
	}
	log.Debug("document snapshot taken", "path", path, "size", info.Size(), "mtime", info.ModTime())
	return &Snapshot{log: log, path: path, info: info, content: content}, nil
}

// Changed reports whether the live file differs from the snapshot by size
// or modification time.
func (s *Snapshot) Changed() (bool, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	return info.Size() != s.info.Size() || !info.ModTime().Equal(s.info.ModTime()), nil
}

// Restore reverts a mutated document to the snapshot, bit for bit, with
// the original modification time. An unchanged document is a no-op, so
// the live (possibly application-untouched) version stays in place. The
// mutated version is renamed aside rather than destroyed.
func (s *Snapshot) Restore() error {
	changed, err := s.Changed()
	if err != nil {
		return err
	}
	if !changed {
		s.log.Debug("document unchanged", "path", s.path)
		return nil
	}

	aside := s.path + AsideSuffix
	if err := os.Rename(s.path, aside); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("setting aside mutated %s: %w", s.path, err)
	}
	if err := os.WriteFile(s.path, s.content, s.info.Mode().Perm()); err != nil {
		return fmt.Errorf("rewriting %s: %w", s.path, err)
	}
	if err := os.Chtimes(s.path, s.info.ModTime(), s.info.ModTime()); err != nil {
		return fmt.Errorf("restoring mtime of %s: %w", s.path, err)
	}
	s.log.Warn("document was modified by the application; restored from snapshot",
		"path", s.path, "aside", aside)
	return nil
}
