package service

import (
	"context"
	"testing"
	"time"
)

func TestRefresher_RunOnceRefreshesWhenDue(t *testing.T) {
	ch := newFakeChain()
	db := newFakeDurable()
	f := &fakeFetcher{payload: testPayload()}
	svc := newTestService(testConfig(), ch, db, f)
	r := NewRefresher(svc, db, 3)

	// No checkpoint yet: first pass must fetch.
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", f.calls)
	}
	if db.lastRefresh.IsZero() {
		t.Fatal("expected refresh checkpoint to be recorded")
	}
}

func TestRefresher_RunOnceSkipsInsideInterval(t *testing.T) {
	ch := newFakeChain()
	db := newFakeDurable()
	f := &fakeFetcher{payload: testPayload()}
	svc := newTestService(testConfig(), ch, db, f)
	r := NewRefresher(svc, db, 3)

	db.lastRefresh = time.Now().Add(-time.Hour)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.calls != 0 {
		t.Errorf("refresh inside the interval should be skipped, got %d calls", f.calls)
	}
}

func TestRefresher_RunOnceRefreshesAfterInterval(t *testing.T) {
	ch := newFakeChain()
	db := newFakeDurable()
	f := &fakeFetcher{payload: testPayload()}
	svc := newTestService(testConfig(), ch, db, f)
	r := NewRefresher(svc, db, 3)

	db.lastRefresh = time.Now().Add(-4 * time.Hour)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.calls != 1 {
		t.Errorf("expected 1 upstream call after interval elapsed, got %d", f.calls)
	}
}
