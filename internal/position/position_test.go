package position_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"MarginPool/internal/position"
)

// ============================================================================
// Test: lifecycle
// ============================================================================

func TestStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to position.Status
		allowed  bool
	}{
		{position.StatusPreOpen, position.StatusRunning, true},
		{position.StatusRunning, position.StatusAdjusting, true},
		{position.StatusAdjusting, position.StatusRunning, true},
		{position.StatusPreOpen, position.StatusAdjusting, false},
		{position.StatusRunning, position.StatusPreOpen, false},
		{position.StatusAdjusting, position.StatusPreOpen, false},
		{position.StatusRunning, position.StatusRunning, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestDeriveID(t *testing.T) {
	if got := position.DeriveID("usdt", "near", "usdt"); got != "usdt|near|usdt" {
		t.Errorf("got %q, want %q", got, "usdt|near|usdt")
	}
}

func TestIsUnwound(t *testing.T) {
	p := &position.MarginPosition{
		DebtShares:     decimal.Zero,
		PositionAmount: decimal.Zero,
	}
	if !p.IsUnwound() {
		t.Error("zero debt and position should be unwound")
	}
	p.PositionAmount = decimal.RequireFromString("0.000000000001")
	if p.IsUnwound() {
		t.Error("residual position amount should not be unwound")
	}
}

// ============================================================================
// Test: store
// ============================================================================

func TestStore_CreateGetDelete(t *testing.T) {
	s := position.NewStore()
	pos := &position.MarginPosition{
		ID:        position.DeriveID("usdt", "near", "usdt"),
		AccountID: "alice",
		Status:    position.StatusPreOpen,
	}

	if err := s.Create(pos); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(pos); !errors.Is(err, position.ErrPositionAlreadyExists) {
		t.Fatalf("duplicate create: got %v, want ErrPositionAlreadyExists", err)
	}

	got, err := s.Get("alice", pos.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != pos {
		t.Error("get should return the stored pointer")
	}

	if _, err := s.Get("bob", pos.ID); !errors.Is(err, position.ErrPositionNotFound) {
		t.Errorf("wrong account: got %v, want ErrPositionNotFound", err)
	}

	if err := s.Delete("alice", pos.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get("alice", pos.ID); !errors.Is(err, position.ErrPositionNotFound) {
		t.Errorf("get after delete: got %v, want ErrPositionNotFound", err)
	}
	if err := s.Delete("alice", pos.ID); !errors.Is(err, position.ErrPositionNotFound) {
		t.Errorf("double delete: got %v, want ErrPositionNotFound", err)
	}
}

func TestStore_List(t *testing.T) {
	s := position.NewStore()
	for _, id := range []string{
		position.DeriveID("usdt", "near", "usdt"),
		position.DeriveID("usdt", "eth", "usdt"),
	} {
		if err := s.Create(&position.MarginPosition{ID: id, AccountID: "alice"}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := s.Create(&position.MarginPosition{ID: "x|y|z", AccountID: "bob"}); err != nil {
		t.Fatalf("create for bob: %v", err)
	}

	if got := len(s.List("alice")); got != 2 {
		t.Errorf("alice positions: got %d, want 2", got)
	}
	if got := len(s.List("carol")); got != 0 {
		t.Errorf("carol positions: got %d, want 0", got)
	}
	if got := len(s.All()); got != 3 {
		t.Errorf("all positions: got %d, want 3", got)
	}
}
