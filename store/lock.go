// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Writer lock file names inside the store directory.
const (
	lockFileName = "WRITER.lock"
	infoFileName = "WRITER.json"
)

// writerLock holds the exclusive writer flock for a store directory.
//
// # Description
//
// The lock file is flocked for the lifetime of the store; the info file
// records PID, session id, and acquisition time for visibility. A stale
// info file left by a dead process is taken over. An fsnotify watcher
// on the info file reports external tampering on Tampered.
type writerLock struct {
	dir      string
	file     *os.File
	infoPath string
	holder   LockHolder
	watcher  *fsnotify.Watcher
	tampered chan string
	done     chan struct{}
	logger   *slog.Logger
}

// acquireWriterLock takes the exclusive writer lock for dir.
func acquireWriterLock(dir, sessionID string, logger *slog.Logger) (*writerLock, error) {
	lockPath := filepath.Join(dir, lockFileName)
	infoPath := filepath.Join(dir, infoFileName)

	f, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", lockPath, err)
	}

	if err := flockExclusive(f); err != nil {
		f.Close()
		if holder, herr := readLockHolder(infoPath); herr == nil {
			return nil, &LockError{Path: dir, Holder: holder, Err: ErrLocked}
		}
		return nil, &LockError{Path: dir, Err: ErrLocked}
	}

	// We hold the flock, so any existing info file is from a process
	// that died without releasing it.
	if stale, err := readLockHolder(infoPath); err == nil {
		logger.Info("taking over stale writer lock",
			slog.Int("old_pid", stale.PID),
			slog.String("old_session", stale.SessionID))
	}

	holder := LockHolder{
		PID:        os.Getpid(),
		SessionID:  sessionID,
		AcquiredAt: time.Now().UTC(),
	}
	if err := writeLockHolder(infoPath, holder); err != nil {
		unlockFile(f)
		f.Close()
		return nil, err
	}

	w := &writerLock{
		dir:      dir,
		file:     f,
		infoPath: infoPath,
		holder:   holder,
		tampered: make(chan string, 4),
		done:     make(chan struct{}),
		logger:   logger,
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("lock info watcher unavailable", slog.String("error", err.Error()))
	} else {
		w.watcher = watcher
		if err := watcher.Add(infoPath); err != nil {
			logger.Warn("cannot watch lock info file", slog.String("error", err.Error()))
			watcher.Close()
			w.watcher = nil
		} else {
			go w.watchLoop()
		}
	}

	return w, nil
}

// Tampered reports external writes to the lock info file. The channel
// is never closed while the lock is held; events overflow silently.
func (w *writerLock) Tampered() <-chan string {
	return w.tampered
}

func (w *writerLock) watchLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Warn("writer lock info file modified externally",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()))
			select {
			case w.tampered <- event.Op.String():
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("lock info watcher error", slog.String("error", err.Error()))
		}
	}
}

// release drops the flock and removes the info file.
func (w *writerLock) release() error {
	close(w.done)
	if w.watcher != nil {
		w.watcher.Close()
	}

	if err := os.Remove(w.infoPath); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("cannot remove lock info file", slog.String("error", err.Error()))
	}

	err := unlockFile(w.file)
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// writeLockHolder writes lock metadata to a JSON file.
func writeLockHolder(path string, holder LockHolder) error {
	data, err := json.MarshalIndent(holder, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write lock info %s: %w", path, err)
	}
	return nil
}

// readLockHolder reads lock metadata from a JSON file.
func readLockHolder(path string) (*LockHolder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var holder LockHolder
	if err := json.Unmarshal(data, &holder); err != nil {
		return nil, fmt.Errorf("parse lock info %s: %w", path, err)
	}
	return &holder, nil
}
