package backlog

import (
	"context"
	"testing"
	"time"

	"finch/internal/brain"
)

func TestReapDeadBrainsRemovesOnlyStaleDead(t *testing.T) {
	registry := brain.NewRegistry()

	stale := registry.Insert("stale task")
	registry.Cancel(stale.ID)

	fresh := registry.Insert("fresh task")
	registry.Cancel(fresh.ID)

	live := registry.Insert("still running")

	// A 1ns maxAge means both dead brains clear the staleness cutoff
	// almost immediately; this exercises the reap path without needing
	// to fabricate timestamps.
	s := NewScheduler(registry, time.Nanosecond, nil)
	time.Sleep(time.Millisecond)
	s.reapDeadBrains(context.Background())

	if _, ok := registry.ByID(stale.ID); ok {
		t.Error("expected stale dead brain to be reaped")
	}
	if _, ok := registry.ByID(fresh.ID); ok {
		t.Error("expected fresh dead brain to be reaped too (maxAge=1ns)")
	}
	if _, ok := registry.ByID(live.ID); !ok {
		t.Error("expected live (non-Dead) brain to survive reaping")
	}
}
