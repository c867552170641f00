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
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for store operations.
var (
	// ErrStoreClosed indicates an operation on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrReadOnly indicates a write on a store opened read-only.
	ErrReadOnly = errors.New("store is read-only")

	// ErrLocked indicates the store directory is held by another writer.
	ErrLocked = errors.New("store is locked by another process")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrVersionMismatch indicates schema or canonicalization versions
	// that differ from this build's constants.
	ErrVersionMismatch = errors.New("store version mismatch")

	// ErrModelMismatch indicates a circuit or store whose gate model
	// differs from the one this store was created for.
	ErrModelMismatch = errors.New("gate model mismatch")

	// ErrCorruptRecord indicates a stored value that fails to decode.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrStopScan stops an ordered scan early without error.
	ErrStopScan = errors.New("stop scan")
)

// LockHolder describes the writer recorded in a lock info file.
type LockHolder struct {
	PID        int       `json:"pid"`
	SessionID  string    `json:"session_id"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// LockError reports a writer-lock conflict with the current holder, so
// callers can decide whether to wait or fail the run.
type LockError struct {
	Path   string
	Holder *LockHolder
	Err    error
}

// Error returns a human-readable error message.
func (e *LockError) Error() string {
	if e.Holder != nil {
		return fmt.Sprintf("store %s is locked by PID %d (session %s) since %s: %v",
			e.Path, e.Holder.PID, e.Holder.SessionID,
			e.Holder.AcquiredAt.Format(time.RFC3339), e.Err)
	}
	return fmt.Sprintf("store %s is locked: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *LockError) Unwrap() error {
	return e.Err
}
