// Package kv implements the scoped key-value store (§4.2): a uniform
// capability interface over an embedded single-writer/multi-reader
// database, one instance per storage scope (Application, Workspace,
// Project). Keys are opaque strings; values are raw JSON.
package kv

import (
	"context"
	"encoding/json"

	"github.com/sapic-foundation/sapic-core/internal/ids"
)

// FlushMode selects how aggressively Flush persists outstanding writes.
type FlushMode int

const (
	// Checkpoint is the periodic, low-priority persistence pass issued by
	// the background checkpoint task (§5).
	Checkpoint FlushMode = iota
	// Force is issued on explicit shutdown and must not return until
	// every outstanding write is durable.
	Force
)

// KV is a single key/value pair, used by batch operations.
type KV struct {
	Key   string
	Value json.RawMessage
}

// KVOption is a key paired with an optional value, used by batch reads and
// removals where a key might not be present.
type KVOption struct {
	Key   string
	Value json.RawMessage
	Found bool
}

// KvStorage is the capability interface every scope's backing database
// implements. Callers hold this interface and never name the concrete
// storage engine (§9 "dynamic dispatch of storage").
type KvStorage interface {
	// Put upserts key to value.
	Put(ctx context.Context, key string, value json.RawMessage) error
	// Get returns the value at key, or found=false if absent.
	Get(ctx context.Context, key string) (value json.RawMessage, found bool, err error)
	// Remove deletes key, returning its prior value if present.
	Remove(ctx context.Context, key string) (value json.RawMessage, found bool, err error)
	// PutBatch upserts every entry atomically within the scope's single
	// writer.
	PutBatch(ctx context.Context, entries []KV) error
	// GetBatch reads every key, order-preserving, each reporting whether
	// it was found.
	GetBatch(ctx context.Context, keys []string) ([]KVOption, error)
	// RemoveBatch deletes every key atomically, returning prior values.
	RemoveBatch(ctx context.Context, keys []string) ([]KVOption, error)
	// GetBatchByPrefix returns every (key, value) pair whose key starts
	// with prefix, in lexicographic key order.
	GetBatchByPrefix(ctx context.Context, prefix string) ([]KV, error)
	// RemoveBatchByPrefix atomically removes and returns every pair whose
	// key starts with prefix.
	RemoveBatchByPrefix(ctx context.Context, prefix string) ([]KV, error)
	// Flush persists outstanding writes per mode.
	Flush(ctx context.Context, mode FlushMode) error
	// Close releases the underlying database handle. After Close, every
	// other method returns a coreerr.Closed error.
	Close(ctx context.Context) error
}

// ScopeKind distinguishes which of the three storage scopes a ChangeEvent
// originated in.
type ScopeKind int

const (
	ScopeApplication ScopeKind = iota
	ScopeWorkspace
	ScopeProject
)

// Scope identifies the storage scope a ChangeEvent originated in. Workspace
// and Project are populated only for the matching Kind.
type Scope struct {
	Kind      ScopeKind
	Workspace ids.WorkspaceId
	Project   ids.ProjectId
}

// ChangeEvent reports a key's value changing within a scope (§4.2: `put`
// emits `OnDidChangeValue{key, scope, removed=false}`, `remove` emits
// `removed=true`).
type ChangeEvent struct {
	Scope   Scope
	Key     string
	Removed bool
}

// ChangeObserver is notified after every successful Put or Remove.
type ChangeObserver func(ChangeEvent)
