// Package common defines shared constants and sentinel errors used across
// the agent and server layers of Field Reporter. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrStorage marks a local disk or transaction failure. It is fatal to
	// the triggering operation and must be surfaced to the caller right
	// away; a capture is never silently dropped.
	ErrStorage = errors.New("local storage failure")

	// Sync transport errors. Transient failures stay inside the upload
	// worker and are retried with backoff; permanent failures move the
	// queue item to the dead-letter state.
	ErrTransientNetwork    = errors.New("transient network failure")
	ErrPermanentValidation = errors.New("permanent validation failure")

	// Merge errors. ErrConflict means neither side can win automatically
	// (e.g. deleted remotely but edited locally) and the user must choose.
	ErrConflict        = errors.New("unresolvable conflict")
	ErrVersionConflict = errors.New("version conflict")

	// Auth errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
)
