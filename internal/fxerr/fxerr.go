// Package fxerr defines the error taxonomy shared across the pipeline.
//
// Kinds are sentinel values, never string-matched: callers use errors.Is
// and errors.As against these variables and types.
package fxerr

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth signals missing or rejected broker credentials. Fatal for the
	// session that produced it; the session stays unconnected.
	ErrAuth = errors.New("fxerr: authentication failed")

	// ErrTransport signals a dial, read, or write failure on a network
	// transport (broker socket, object store, relational store). Always
	// retried by the owning worker; never propagated out of a session.
	ErrTransport = errors.New("fxerr: transport error")

	// ErrProviderBuffer is the historical provider's recognizable
	// "buffer" failure signature on a specific chunk. Triggers adaptive
	// sub-chunking in the importer.
	ErrProviderBuffer = errors.New("fxerr: provider buffer error")

	// ErrInvalidInput signals a fatal, job-scoped input problem (unknown
	// symbol, malformed CLI argument).
	ErrInvalidInput = errors.New("fxerr: invalid input")

	// ErrInvalidTick signals a single tick failed validation. Never
	// returned to a caller as a hard error; it is dropped and logged.
	ErrInvalidTick = errors.New("fxerr: invalid tick")

	// ErrQuality signals the materializer's drop-rate gate was exceeded.
	// Aborts the unit of work being materialized (a day); the job
	// continues to the next unit.
	ErrQuality = errors.New("fxerr: quality gate exceeded")

	// ErrUpsert signals a relational batch write failed. Propagated to
	// the invoking job, which logs and exits non-zero.
	ErrUpsert = errors.New("fxerr: upsert failed")
)

// AuthError carries venue context for a credential failure.
type AuthError struct {
	Venue string
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error for venue %q: %v", e.Venue, e.Err)
}

func (e *AuthError) Unwrap() error { return ErrAuth }

// TransportError carries the failing endpoint for a network error.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error on %q: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return ErrTransport }

// ProviderBufferError carries the chunk window that failed.
type ProviderBufferError struct {
	Symbol       string
	ChunkStartMS int64
	ChunkEndMS   int64
	Err          error
}

func (e *ProviderBufferError) Error() string {
	return fmt.Sprintf("provider buffer error for %s [%d,%d): %v",
		e.Symbol, e.ChunkStartMS, e.ChunkEndMS, e.Err)
}

func (e *ProviderBufferError) Unwrap() error { return ErrProviderBuffer }

// QualityError reports the observed drop rate against the gate.
type QualityError struct {
	Symbol    string
	DropRate  float64
	Threshold float64
	Total     int
	Dropped   int
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("quality gate exceeded for %s: %.4f > %.4f (%d/%d dropped)",
		e.Symbol, e.DropRate, e.Threshold, e.Dropped, e.Total)
}

func (e *QualityError) Unwrap() error { return ErrQuality }

// UpsertError wraps a relational batch failure with positional context.
type UpsertError struct {
	Symbol     string
	BatchStart int
	BatchLen   int
	Err        error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("upsert failed for %s batch[%d:%d]: %v",
		e.Symbol, e.BatchStart, e.BatchStart+e.BatchLen, e.Err)
}

func (e *UpsertError) Unwrap() error { return ErrUpsert }
