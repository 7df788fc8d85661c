package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"MarginPool/internal/event"
	"MarginPool/internal/persistence"
	"MarginPool/internal/saga"
	"MarginPool/internal/testutil"
)

func setup(t *testing.T) *persistence.PostgresRecordStore {
	t.Helper()
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	if err := persistence.NewMigrator(db, "../../migrations").Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return persistence.NewPostgresRecordStore(db)
}

func TestRecordStore_SaveLoadDelete(t *testing.T) {
	store := setup(t)

	rec := &saga.Record{
		CorrelationID:  uuid.New(),
		AccountID:      "alice",
		PosID:          "usdt|near|usdt",
		Op:             event.OpOpen,
		ReservedAmount: dec("500"),
		MinAmountOut:   dec("1485"),
		Phase:          saga.PhaseAwaitingResolve,
		StartedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := store.Save(rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	records, err := store.LoadOpen()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("loaded %d records, want 1", len(records))
	}
	got := records[0]
	if got.PosID != rec.PosID || got.AccountID != rec.AccountID || got.Op != rec.Op {
		t.Errorf("loaded record mismatch: %+v", got)
	}
	if !got.ReservedAmount.Equal(rec.ReservedAmount) || !got.MinAmountOut.Equal(rec.MinAmountOut) {
		t.Errorf("loaded amounts mismatch: reserved=%s min=%s", got.ReservedAmount, got.MinAmountOut)
	}
	if got.Phase != saga.PhaseAwaitingResolve {
		t.Errorf("phase: got %d, want AwaitingResolve", got.Phase)
	}

	if err := store.UpdatePhase(rec.AccountID, rec.PosID, saga.PhaseAwaitingFill); err != nil {
		t.Fatalf("update phase: %v", err)
	}
	records, err = store.LoadOpen()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if records[0].Phase != saga.PhaseAwaitingFill {
		t.Errorf("phase after update: got %d, want AwaitingFill", records[0].Phase)
	}

	if err := store.Delete(rec.AccountID, rec.PosID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	records, err = store.LoadOpen()
	if err != nil {
		t.Fatalf("load after delete: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("loaded %d records after delete, want 0", len(records))
	}
}

func TestRecordStore_UpdatePhaseMissing(t *testing.T) {
	store := setup(t)

	if err := store.UpdatePhase("nobody", "no|such|saga", saga.PhaseAwaitingFill); err == nil {
		t.Error("updating a missing saga should fail")
	}
}

func TestRecordStore_SameTripleAcrossAccounts(t *testing.T) {
	store := setup(t)

	base := saga.Record{
		PosID:          "usdt|near|usdt",
		Op:             event.OpOpen,
		ReservedAmount: dec("500"),
		MinAmountOut:   dec("1485"),
		Phase:          saga.PhaseAwaitingResolve,
		StartedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
	alice, bob := base, base
	alice.CorrelationID = uuid.New()
	alice.AccountID = "alice"
	bob.CorrelationID = uuid.New()
	bob.AccountID = "bob"

	if err := store.Save(&alice); err != nil {
		t.Fatalf("save alice: %v", err)
	}
	if err := store.Save(&bob); err != nil {
		t.Fatalf("save bob: %v", err)
	}

	// Both continuations coexist; neither overwrites the other.
	records, err := store.LoadOpen()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("loaded %d records, want 2", len(records))
	}

	if err := store.UpdatePhase("bob", base.PosID, saga.PhaseAwaitingFill); err != nil {
		t.Fatalf("update bob: %v", err)
	}
	records, err = store.LoadOpen()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	for _, r := range records {
		want := saga.PhaseAwaitingResolve
		if r.AccountID == "bob" {
			want = saga.PhaseAwaitingFill
		}
		if r.Phase != want {
			t.Errorf("%s phase: got %d, want %d", r.AccountID, r.Phase, want)
		}
	}

	if err := store.Delete("alice", base.PosID); err != nil {
		t.Fatalf("delete alice: %v", err)
	}
	records, err = store.LoadOpen()
	if err != nil {
		t.Fatalf("load after delete: %v", err)
	}
	if len(records) != 1 || records[0].AccountID != "bob" {
		t.Errorf("records after deleting alice: %+v", records)
	}
}

func TestProcessedCallbackStore_RoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	if err := persistence.NewMigrator(db, "../../migrations").Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := persistence.NewProcessedCallbackStore(db)
	ctx := context.Background()

	key := uuid.NewString()
	dup, err := store.IsDuplicate("ExactFill", key)
	if err != nil {
		t.Fatalf("is duplicate: %v", err)
	}
	if dup {
		t.Error("fresh key reported duplicate")
	}

	if err := store.Record(ctx, "ExactFill", key); err != nil {
		t.Fatalf("record: %v", err)
	}
	// Recording twice is a no-op, not an error.
	if err := store.Record(ctx, "ExactFill", key); err != nil {
		t.Fatalf("record again: %v", err)
	}

	dup, err = store.IsDuplicate("ExactFill", key)
	if err != nil {
		t.Fatalf("is duplicate after record: %v", err)
	}
	if !dup {
		t.Error("recorded key not reported duplicate")
	}

	keys, err := store.RecentKeys(ctx, 10)
	if err != nil {
		t.Fatalf("recent keys: %v", err)
	}
	found := false
	for _, k := range keys {
		if k == "ExactFill:"+key {
			found = true
		}
	}
	if !found {
		t.Errorf("recent keys missing composite, got %v", keys)
	}
}
