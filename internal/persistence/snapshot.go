package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"MarginPool/internal/pool"
	"MarginPool/internal/position"
)

// SnapshotManager persists point-in-time images of ledger and position state
// so a restart does not have to rebuild pools from scratch. Continuations in
// margin.sagas are restored separately after the snapshot is applied.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SnapshotData is the serializable engine state.
type SnapshotData struct {
	Assets    []AssetSnap    `json:"assets"`
	Accounts  []AccountSnap  `json:"accounts"`
	Positions []PositionSnap `json:"positions"`
	CreatedAt time.Time      `json:"created_at"`
}

// AssetSnap is a serializable pool.Asset.
type AssetSnap struct {
	Symbol          string          `json:"symbol"`
	SuppliedShares  decimal.Decimal `json:"supplied_shares"`
	SuppliedBalance decimal.Decimal `json:"supplied_balance"`
	BorrowedShares  decimal.Decimal `json:"borrowed_shares"`
	BorrowedBalance decimal.Decimal `json:"borrowed_balance"`
	DebtShares      decimal.Decimal `json:"margin_debt_shares"`
	DebtBalance     decimal.Decimal `json:"margin_debt_balance"`
	Reserved        decimal.Decimal `json:"reserved"`
	ProtocolFee     decimal.Decimal `json:"protocol_fee"`
	PendingDebt     decimal.Decimal `json:"pending_debt"`
	MarginPosition  decimal.Decimal `json:"margin_position"`
	FluctuationRate decimal.Decimal `json:"fluctuation_rate"`
}

// AccountSnap is a serializable pool.Account.
type AccountSnap struct {
	ID       string                     `json:"id"`
	Supplied map[string]decimal.Decimal `json:"supplied"`
}

// PositionSnap is a serializable position.MarginPosition.
type PositionSnap struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"account_id"`
	MarginAsset    string          `json:"margin_asset"`
	MarginShares   decimal.Decimal `json:"margin_shares"`
	DebtAsset      string          `json:"debt_asset"`
	DebtShares     decimal.Decimal `json:"debt_shares"`
	PositionAsset  string          `json:"position_asset"`
	PositionAmount decimal.Decimal `json:"position_amount"`
	Status         int32           `json:"status"`
}

// Capture builds a snapshot from live state. The caller holds whatever lock
// guards the ledger while this runs.
func Capture(led *pool.Ledger, store *position.Store) *SnapshotData {
	data := &SnapshotData{CreatedAt: time.Now().UTC()}

	for _, symbol := range led.AssetSymbols() {
		a, err := led.Asset(symbol)
		if err != nil {
			continue
		}
		data.Assets = append(data.Assets, AssetSnap{
			Symbol:          a.Symbol,
			SuppliedShares:  a.Supplied.Shares,
			SuppliedBalance: a.Supplied.Balance,
			BorrowedShares:  a.Borrowed.Shares,
			BorrowedBalance: a.Borrowed.Balance,
			DebtShares:      a.MarginDebt.Shares,
			DebtBalance:     a.MarginDebt.Balance,
			Reserved:        a.Reserved,
			ProtocolFee:     a.ProtocolFee,
			PendingDebt:     a.PendingDebt,
			MarginPosition:  a.MarginPosition,
			FluctuationRate: a.FluctuationRate,
		})
	}

	for _, ac := range led.Accounts() {
		snap := AccountSnap{ID: ac.ID, Supplied: make(map[string]decimal.Decimal, len(ac.Supplied))}
		for asset, shares := range ac.Supplied {
			snap.Supplied[asset] = shares
		}
		data.Accounts = append(data.Accounts, snap)
	}

	for _, p := range store.All() {
		data.Positions = append(data.Positions, PositionSnap{
			ID:             p.ID,
			AccountID:      p.AccountID,
			MarginAsset:    p.MarginAsset,
			MarginShares:   p.MarginShares,
			DebtAsset:      p.DebtAsset,
			DebtShares:     p.DebtShares,
			PositionAsset:  p.PositionAsset,
			PositionAmount: p.PositionAmount,
			Status:         int32(p.Status),
		})
	}

	return data
}

// Apply loads a snapshot into an empty ledger and position store.
func Apply(data *SnapshotData, led *pool.Ledger, store *position.Store) error {
	for _, s := range data.Assets {
		a := pool.NewAsset(s.Symbol, s.FluctuationRate)
		a.Supplied = pool.SharePool{Shares: s.SuppliedShares, Balance: s.SuppliedBalance}
		a.Borrowed = pool.SharePool{Shares: s.BorrowedShares, Balance: s.BorrowedBalance}
		a.MarginDebt = pool.SharePool{Shares: s.DebtShares, Balance: s.DebtBalance}
		a.Reserved = s.Reserved
		a.ProtocolFee = s.ProtocolFee
		a.PendingDebt = s.PendingDebt
		a.MarginPosition = s.MarginPosition
		led.AddAsset(a)
	}

	for _, s := range data.Accounts {
		ac := led.Account(s.ID)
		for asset, shares := range s.Supplied {
			ac.DepositSupplyShares(asset, shares)
		}
	}

	for _, s := range data.Positions {
		p := &position.MarginPosition{
			ID:             s.ID,
			AccountID:      s.AccountID,
			MarginAsset:    s.MarginAsset,
			MarginShares:   s.MarginShares,
			DebtAsset:      s.DebtAsset,
			DebtShares:     s.DebtShares,
			PositionAsset:  s.PositionAsset,
			PositionAmount: s.PositionAmount,
			Status:         position.Status(s.Status),
		}
		if err := store.Create(p); err != nil {
			return fmt.Errorf("restore position %s: %w", s.ID, err)
		}
	}

	return nil
}

// Save writes a snapshot row.
func (sm *SnapshotManager) Save(ctx context.Context, data *SnapshotData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO margin.snapshots (snapshot_id, data, created_at)
		VALUES ($1, $2, $3)
	`, uuid.New(), payload, data.CreatedAt)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadLatest reads the newest snapshot, or nil when none exists.
func (sm *SnapshotManager) LoadLatest(ctx context.Context) (*SnapshotData, error) {
	var payload []byte
	err := sm.db.QueryRowContext(ctx, `
		SELECT data FROM margin.snapshots ORDER BY created_at DESC LIMIT 1
	`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var data SnapshotData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &data, nil
}

// Prune removes all but the newest keep snapshots.
func (sm *SnapshotManager) Prune(ctx context.Context, keep int) error {
	_, err := sm.db.ExecContext(ctx, `
		DELETE FROM margin.snapshots
		WHERE snapshot_id NOT IN (
			SELECT snapshot_id FROM margin.snapshots ORDER BY created_at DESC LIMIT $1
		)
	`, keep)
	return err
}
