package saga_test

import (
	"errors"
	"testing"

	"MarginPool/internal/saga"
)

type fakeDedupDB struct {
	keys map[string]bool
	err  error
}

func (f *fakeDedupDB) IsDuplicate(eventType, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.keys[eventType+":"+key], nil
}

func TestDeduper_LRUHit(t *testing.T) {
	d := saga.NewDeduper(10, nil)

	if d.IsDuplicate("ExactFill", "cb-1") {
		t.Error("fresh key reported duplicate")
	}
	d.MarkProcessed("ExactFill", "cb-1")
	if !d.IsDuplicate("ExactFill", "cb-1") {
		t.Error("marked key not reported duplicate")
	}
	// Same key under a different type is distinct.
	if d.IsDuplicate("TradeResolved", "cb-1") {
		t.Error("type must be part of the dedup key")
	}
}

func TestDeduper_Eviction(t *testing.T) {
	d := saga.NewDeduper(2, nil)
	d.MarkProcessed("ExactFill", "a")
	d.MarkProcessed("ExactFill", "b")
	d.MarkProcessed("ExactFill", "c")

	if d.Size() != 2 {
		t.Fatalf("size: got %d, want 2", d.Size())
	}
	// Oldest entry evicted; without a DB fallback it is forgotten.
	if d.IsDuplicate("ExactFill", "a") {
		t.Error("evicted key still reported duplicate")
	}
	if !d.IsDuplicate("ExactFill", "c") {
		t.Error("recent key lost")
	}
}

func TestDeduper_DBFallback(t *testing.T) {
	db := &fakeDedupDB{keys: map[string]bool{"ExactFill:cb-9": true}}
	d := saga.NewDeduper(10, db)

	if !d.IsDuplicate("ExactFill", "cb-9") {
		t.Error("DB-known key not reported duplicate")
	}
	// The DB hit is promoted into the LRU.
	_, hitsDB, _ := d.Stats()
	if hitsDB != 1 {
		t.Errorf("db hits: got %d, want 1", hitsDB)
	}
	if !d.IsDuplicate("ExactFill", "cb-9") {
		t.Error("promoted key not in LRU")
	}
	hitsLRU, hitsDB, _ := d.Stats()
	if hitsLRU != 1 || hitsDB != 1 {
		t.Errorf("stats after promotion: lru=%d db=%d", hitsLRU, hitsDB)
	}
}

func TestDeduper_DBErrorTreatedAsFresh(t *testing.T) {
	db := &fakeDedupDB{err: errors.New("connection refused")}
	d := saga.NewDeduper(10, db)

	// Failing open here would stall settlement; the saga phase checks catch
	// any replay that slips through.
	if d.IsDuplicate("ExactFill", "cb-1") {
		t.Error("DB error must not report duplicate")
	}
	_, _, dbErrors := d.Stats()
	if dbErrors != 1 {
		t.Errorf("db errors: got %d, want 1", dbErrors)
	}
}

func TestDeduper_Warm(t *testing.T) {
	d := saga.NewDeduper(10, nil)
	d.Warm([]string{"ExactFill:cb-1", "TradeResolved:cb-2"})

	if !d.IsDuplicate("ExactFill", "cb-1") {
		t.Error("warmed key not reported duplicate")
	}
	if !d.IsDuplicate("TradeResolved", "cb-2") {
		t.Error("warmed key not reported duplicate")
	}
	if d.Size() != 2 {
		t.Errorf("size after warm: got %d, want 2", d.Size())
	}
}
