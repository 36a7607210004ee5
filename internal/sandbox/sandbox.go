// Package sandbox swaps the driven application's persistent settings for
// a deterministic synthetic set and restores the originals afterward.
// Personal settings change dialog tab order and would invalidate hardcoded
// input sequences, so every run gets the same synthetic config.
package sandbox

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// BackupSuffix is appended to a live config path to form its backup path.
const BackupSuffix = ".pre_script"

// BackupExistsError reports a backup file already present before the run.
// This is a human-recoverable condition, not a bug: a previous run crashed
// without restoring, or the user created the file by hand. Overwriting it
// would silently discard the user's real settings.
type BackupExistsError struct {
	Path   string
	Backup string
}

func (e *BackupExistsError) Error() string {
	return fmt.Sprintf("config backup already exists at %s; restore or remove it before running", e.Backup)
}

// File is one sandboxed config file. At most one File may exist per live
// path at a time; Stash enforces this through the backup-exists check.
type File struct {
	log       *slog.Logger
	live      string
	backup    string
	synthetic []byte
	hadLive   bool
	restored  bool
}

// Stash moves any live config at path aside to path+BackupSuffix and
// writes the synthetic content in its place. It fails fast with
// *BackupExistsError, without touching the live file, when a backup is
// already present.
func Stash(log *slog.Logger, path string, synthetic []byte) (*File, error) {
	backup := path + BackupSuffix
	if _, err := os.Lstat(backup); err == nil {
		return nil, &BackupExistsError{Path: path, Backup: backup}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	f := &File{
		log:       log,
		live:      path,
		backup:    backup,
		synthetic: synthetic,
	}

	if _, err := os.Lstat(path); err == nil {
		if err := os.Rename(path, backup); err != nil {
			return nil, fmt.Errorf("backing up %s: %w", path, err)
		}
		f.hadLive = true
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := os.WriteFile(path, synthetic, 0o644); err != nil {
		// Undo the rename so a write failure leaves no half-stashed state.
		if f.hadLive {
			if rerr := os.Rename(backup, path); rerr != nil {
				return nil, errors.Join(err, rerr)
			}
		}
		return nil, fmt.Errorf("writing synthetic config %s: %w", path, err)
	}

	log.Debug("config sandboxed", "path", path, "had_live", f.hadLive)
	return f, nil
}

// Restore removes the synthetic config and moves the backup, if one was
// taken, back over the live path. Idempotent. A synthetic file the driven
// application mutated during the run is a warning, never a failure: the
// restore still runs and the user's settings still come back.
func (f *File) Restore() error {
	if f.restored {
		return nil
	}
	f.restored = true

	if current, err := os.ReadFile(f.live); err == nil {
		if !bytes.Equal(current, f.synthetic) {
			f.log.Warn("synthetic config was modified during the run", "path", f.live)
		}
	}

	if err := os.Remove(f.live); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing synthetic config %s: %w", f.live, err)
	}
	if f.hadLive {
		if err := os.Rename(f.backup, f.live); err != nil {
			return fmt.Errorf("restoring %s: %w", f.live, err)
		}
	}
	f.log.Debug("config restored", "path", f.live)
	return nil
}

// Sandbox aggregates the sandboxed files of one run.
type Sandbox struct {
	files []*File
}

// Stash sandboxes one more config file.
func (s *Sandbox) Stash(log *slog.Logger, path string, synthetic []byte) error {
	f, err := Stash(log, path, synthetic)
	if err != nil {
		return err
	}
	s.files = append(s.files, f)
	return nil
}

// RestoreAll restores every file in reverse stash order, collecting any
// errors. It must run on every exit path of the run.
func (s *Sandbox) RestoreAll() error {
	var errs []error
	for i := len(s.files) - 1; i >= 0; i-- {
		if err := s.files[i].Restore(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
