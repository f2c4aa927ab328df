package kv

import (
	"context"
	"encoding/json"
)

// ObservingStore wraps a KvStorage and notifies an observer after every
// successful Put and Remove, tagging each event with the scope it was
// constructed against (§4.2 "emits OnDidChangeValue{key, scope, removed}"),
// the same wrap-a-capability-interface shape internal/vcs uses for its
// RetryingCollaborator/CachingCollaborator decorators.
type ObservingStore struct {
	KvStorage
	scope    Scope
	observer ChangeObserver
}

// NewObservingStore wraps inner so every successful Put/Remove calls
// observer with scope attached. observer may be nil, in which case
// ObservingStore behaves exactly like inner.
func NewObservingStore(inner KvStorage, scope Scope, observer ChangeObserver) *ObservingStore {
	return &ObservingStore{KvStorage: inner, scope: scope, observer: observer}
}

func (s *ObservingStore) Put(ctx context.Context, key string, value json.RawMessage) error {
	if err := s.KvStorage.Put(ctx, key, value); err != nil {
		return err
	}
	if s.observer != nil {
		s.observer(ChangeEvent{Scope: s.scope, Key: key, Removed: false})
	}
	return nil
}

func (s *ObservingStore) Remove(ctx context.Context, key string) (json.RawMessage, bool, error) {
	value, found, err := s.KvStorage.Remove(ctx, key)
	if err != nil {
		return value, found, err
	}
	if s.observer != nil {
		s.observer(ChangeEvent{Scope: s.scope, Key: key, Removed: true})
	}
	return value, found, err
}

var _ KvStorage = (*ObservingStore)(nil)
