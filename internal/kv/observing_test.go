package kv

import (
	"context"
	"testing"

	"github.com/sapic-foundation/sapic-core/internal/ids"
)

func TestObservingStoreFiresOnPutAndRemove(t *testing.T) {
	inner := openTestStore(t)
	ctx := context.Background()
	wsID := ids.WorkspaceId("ws1")

	var got []ChangeEvent
	s := NewObservingStore(inner, Scope{Kind: ScopeWorkspace, Workspace: wsID}, func(ev ChangeEvent) {
		got = append(got, ev)
	})

	if err := s.Put(ctx, "k", jsonVal("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, _, err := s.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, _, err := s.Remove(ctx, "missing"); err != nil {
		t.Fatalf("Remove missing: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("observer fired %d times, want 3: %+v", len(got), got)
	}
	if got[0].Key != "k" || got[0].Removed || got[0].Scope.Kind != ScopeWorkspace || got[0].Scope.Workspace != wsID {
		t.Fatalf("put event = %+v", got[0])
	}
	if got[1].Key != "k" || !got[1].Removed {
		t.Fatalf("remove event = %+v", got[1])
	}
	if got[2].Key != "missing" || !got[2].Removed {
		t.Fatalf("remove-missing event = %+v", got[2])
	}
}

func TestObservingStoreNilObserverIsNoop(t *testing.T) {
	inner := openTestStore(t)
	ctx := context.Background()
	s := NewObservingStore(inner, Scope{}, nil)

	if err := s.Put(ctx, "k", jsonVal("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	val, found, err := s.Get(ctx, "k")
	if err != nil || !found || string(val) != `"v"` {
		t.Fatalf("Get after Put via ObservingStore: val=%s found=%v err=%v", val, found, err)
	}
}

func TestObservingStoreSkipsEventOnPutError(t *testing.T) {
	inner := openTestStore(t)
	ctx := context.Background()
	inner.Close(ctx)

	var fired bool
	s := NewObservingStore(inner, Scope{}, func(ChangeEvent) { fired = true })
	if err := s.Put(ctx, "k", jsonVal("v")); err == nil {
		t.Fatal("expected Put on closed store to error")
	}
	if fired {
		t.Fatal("observer fired despite Put error")
	}
}
