package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrSyncInProgress indicates a sync is already running for a space.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrConfigNotFound indicates a configuration key has no value.
	ErrConfigNotFound = errors.New("config key not found")

	// Pipeline Errors.
	//
	// These are contained per page during sync and never abort a space.

	// ErrCorpus indicates the corpus source failed (network, auth or parse).
	ErrCorpus = errors.New("corpus source error")

	// ErrEmbedding indicates the embedding provider failed.
	ErrEmbedding = errors.New("embedding error")

	// ErrDimensionMismatch indicates a vector does not have the configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStore indicates an index store read or write failed.
	ErrStore = errors.New("index store error")

	// ErrEmptyContent indicates a page exported no content.
	// Sync treats it as a skip, not a failure.
	ErrEmptyContent = errors.New("empty content")
)
