// Package saga orchestrates the settlement protocol for margin positions:
// validate, reserve, dispatch one external trade, then resolve the outcome
// through two callbacks — a coarse commit-or-compensate resolution followed
// by an exact-fill notification that finalizes share accounting.
package saga

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"MarginPool/internal/event"
	"MarginPool/internal/observability"
	"MarginPool/internal/pool"
	"MarginPool/internal/position"
	"MarginPool/internal/risk"
)

// Dex dispatches a swap to the external trading venue. The call only submits
// the request: the outcome arrives later through the two callbacks, carrying
// ref back unmodified.
type Dex interface {
	Trade(ctx context.Context, assetIn string, amountIn decimal.Decimal, assetOut string, minAmountOut decimal.Decimal, ref event.TradeRef) error
}

// Deps are the engine's collaborators. Records, Dedup, Emit and Metrics may
// be nil; the engine then runs purely in memory.
type Deps struct {
	Dex     Dex
	Records RecordStore
	Dedup   *Deduper
	Emit    func(*event.Result)
	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// sagaKey identifies an in-flight saga. Position IDs are derived from the
// asset triple alone, so the account must be part of the key: the same triple
// opened by two accounts settles independently.
type sagaKey struct {
	accountID string
	posID     string
}

// Engine is the settlement state machine. One mutex serializes every
// mutation; per-position concurrency is excluded by the status guard, so a
// single writer is sufficient and keeps the accounting deterministic.
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	ledger    *pool.Ledger
	positions *position.Store
	sagas     map[sagaKey]*Record

	dex     Dex
	records RecordStore
	dedup   *Deduper
	emit    func(*event.Result)
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewEngine wires the settlement engine over a ledger and position store.
func NewEngine(ledger *pool.Ledger, positions *position.Store, cfg Config, deps Deps) *Engine {
	return &Engine{
		cfg:       cfg,
		ledger:    ledger,
		positions: positions,
		sagas:     make(map[sagaKey]*Record),
		dex:       deps.Dex,
		records:   deps.Records,
		dedup:     deps.Dedup,
		emit:      deps.Emit,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}
}

// Restore reloads persisted continuations after a restart. Positions and
// pool balances are expected to be restored by the caller beforehand.
func (e *Engine) Restore(records []*Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.sagas[sagaKey{r.AccountID, r.PosID}] = r
	}
	e.metrics.SetSagasInFlight(len(e.sagas))
}

// WithState runs fn with the ledger and position store while holding the
// engine lock. Used for state snapshots; fn must not call back into the
// engine.
func (e *Engine) WithState(fn func(led *pool.Ledger, positions *position.Store)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.ledger, e.positions)
}

// InFlight returns the number of open sagas.
func (e *Engine) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sagas)
}

// DepositSupply moves an external amount into the account's general supply.
func (e *Engine) DepositSupply(accountID, asset string, amount decimal.Decimal) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	shares, err := e.ledger.DepositSupply(accountID, asset, amount)
	if err == nil {
		e.refreshPoolGauges()
	}
	return shares, err
}

// WithdrawSupply moves supply shares out of the account back to an external
// amount.
func (e *Engine) WithdrawSupply(accountID, asset string, shares decimal.Decimal) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	amount, err := e.ledger.WithdrawSupply(accountID, asset, shares)
	if err == nil {
		e.refreshPoolGauges()
	}
	return amount, err
}

// OpenPosition starts the open saga: the account posts marginAmount of
// marginAsset from its supply, the engine reserves debtAmount of debtAsset
// against the pool, and a swap of the borrowed debt into positionAsset is
// dispatched with minPositionAmount as the minimum-output bound.
func (e *Engine) OpenPosition(ctx context.Context, accountID, marginAsset string, marginAmount decimal.Decimal, debtAsset string, debtAmount decimal.Decimal, positionAsset string, minPositionAmount decimal.Decimal, prices risk.Prices) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	posID := position.DeriveID(marginAsset, debtAsset, positionAsset)
	if _, err := e.positions.Get(accountID, posID); err == nil {
		return "", position.ErrPositionAlreadyExists
	}

	marginPool, err := e.ledger.Asset(marginAsset)
	if err != nil {
		return "", err
	}
	debtPool, err := e.ledger.Asset(debtAsset)
	if err != nil {
		return "", err
	}
	if _, err := e.ledger.Asset(positionAsset); err != nil {
		return "", err
	}

	// Phase 1: validate, no mutation.
	if err := e.checkDeclaredOutput(minPositionAmount, debtAmount, debtAsset, positionAsset, prices); err != nil {
		return "", err
	}
	if !debtPool.CanReservePendingDebt(debtAmount) {
		return "", pool.ErrCapacityExceeded
	}
	marginShares := marginPool.Supplied.AmountToShares(marginAmount, false)
	account := e.ledger.Account(accountID)
	if account.SupplyShares(marginAsset).LessThan(marginShares) {
		return "", pool.ErrInsufficientSupply
	}
	snap := risk.Snapshot{
		MarginAsset:    marginAsset,
		DebtAsset:      debtAsset,
		PositionAsset:  positionAsset,
		MarginAmount:   marginAmount,
		DebtAmount:     debtAmount,
		PositionAmount: minPositionAmount,
	}
	if err := e.checkRisk(snap, prices); err != nil {
		return "", err
	}

	// Phase 2: reserve. Unconditional once validation passed.
	if err := account.WithdrawSupplyShares(marginAsset, marginShares); err != nil {
		return "", err
	}
	pos := &position.MarginPosition{
		ID:             posID,
		AccountID:      accountID,
		MarginAsset:    marginAsset,
		MarginShares:   marginShares,
		DebtAsset:      debtAsset,
		DebtShares:     decimal.Zero,
		PositionAsset:  positionAsset,
		PositionAmount: decimal.Zero,
		Status:         position.StatusPreOpen,
	}
	if err := e.positions.Create(pos); err != nil {
		account.DepositSupplyShares(marginAsset, marginShares)
		return "", err
	}
	if err := debtPool.ReservePendingDebt(debtAmount); err != nil {
		_ = e.positions.Delete(accountID, posID)
		account.DepositSupplyShares(marginAsset, marginShares)
		return "", err
	}

	rec := &Record{
		CorrelationID:  uuid.New(),
		AccountID:      accountID,
		PosID:          posID,
		Op:             event.OpOpen,
		ReservedAmount: debtAmount,
		MinAmountOut:   minPositionAmount,
		Phase:          PhaseAwaitingResolve,
		StartedAt:      time.Now().UTC(),
	}
	e.beginSaga(rec)
	e.publish(event.NewResult(event.EventTypeOpenStarted, accountID, posID, debtAsset, debtAmount))

	// Phase 3: external call.
	if err := e.dispatch(ctx, rec, debtAsset, debtAmount, positionAsset, minPositionAmount); err != nil {
		e.compensate(rec)
		return "", fmt.Errorf("dispatch trade: %w", err)
	}
	return posID, nil
}

// IncreasePosition starts the increase saga: borrow debtAmount more of the
// position's debt asset and swap it into the position asset.
func (e *Engine) IncreasePosition(ctx context.Context, accountID, posID string, debtAmount, minPositionAmount decimal.Decimal, prices risk.Prices) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.positions.Get(accountID, posID)
	if err != nil {
		return err
	}
	if pos.Status != position.StatusRunning {
		return ErrPositionBusy
	}
	debtPool, err := e.ledger.Asset(pos.DebtAsset)
	if err != nil {
		return err
	}

	if err := e.checkDeclaredOutput(minPositionAmount, debtAmount, pos.DebtAsset, pos.PositionAsset, prices); err != nil {
		return err
	}
	if !debtPool.CanReservePendingDebt(debtAmount) {
		return pool.ErrCapacityExceeded
	}
	snap := e.snapshotOf(pos)
	snap.DebtAmount = snap.DebtAmount.Add(debtAmount)
	snap.PositionAmount = snap.PositionAmount.Add(minPositionAmount)
	if err := e.checkRisk(snap, prices); err != nil {
		return err
	}

	// Position fields stay untouched: risk was validated against a
	// hypothetical state, nothing is committed until the fill arrives.
	pos.Status = position.StatusAdjusting
	if err := debtPool.ReservePendingDebt(debtAmount); err != nil {
		pos.Status = position.StatusRunning
		return err
	}

	rec := &Record{
		CorrelationID:  uuid.New(),
		AccountID:      accountID,
		PosID:          posID,
		Op:             event.OpIncrease,
		ReservedAmount: debtAmount,
		MinAmountOut:   minPositionAmount,
		Phase:          PhaseAwaitingResolve,
		StartedAt:      time.Now().UTC(),
	}
	e.beginSaga(rec)
	e.publish(event.NewResult(event.EventTypeIncreaseStarted, accountID, posID, pos.DebtAsset, debtAmount))

	if err := e.dispatch(ctx, rec, pos.DebtAsset, debtAmount, pos.PositionAsset, minPositionAmount); err != nil {
		e.compensate(rec)
		return fmt.Errorf("dispatch trade: %w", err)
	}
	return nil
}

// DecreasePosition starts the decrease saga: sell positionAmount of the
// position asset back into the debt asset, expecting at least minDebtAmount,
// to repay debt and unwind exposure.
func (e *Engine) DecreasePosition(ctx context.Context, accountID, posID string, positionAmount, minDebtAmount decimal.Decimal, prices risk.Prices) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.positions.Get(accountID, posID)
	if err != nil {
		return err
	}
	if pos.Status != position.StatusRunning {
		return ErrPositionBusy
	}
	posPool, err := e.ledger.Asset(pos.PositionAsset)
	if err != nil {
		return err
	}

	if positionAmount.LessThanOrEqual(decimal.Zero) || positionAmount.GreaterThan(pos.PositionAmount) {
		return ErrUnreasonableAmount
	}
	if err := e.checkDeclaredOutput(minDebtAmount, positionAmount, pos.PositionAsset, pos.DebtAsset, prices); err != nil {
		return err
	}
	snap := e.snapshotOf(pos)
	snap.PositionAmount = snap.PositionAmount.Sub(positionAmount)
	repaid := decimal.Min(minDebtAmount, snap.DebtAmount)
	snap.DebtAmount = snap.DebtAmount.Sub(repaid)
	if err := e.checkRisk(snap, prices); err != nil {
		return err
	}

	// The debt pool is deliberately untouched here: repaying before the
	// received amount is confirmed would move the pool's share price on
	// unconfirmed state. Only the exposure comes out now.
	pos.Status = position.StatusAdjusting
	pos.PositionAmount = pos.PositionAmount.Sub(positionAmount)
	posPool.SubPositionExposure(positionAmount)

	rec := &Record{
		CorrelationID:  uuid.New(),
		AccountID:      accountID,
		PosID:          posID,
		Op:             event.OpDecrease,
		ReservedAmount: positionAmount,
		MinAmountOut:   minDebtAmount,
		Phase:          PhaseAwaitingResolve,
		StartedAt:      time.Now().UTC(),
	}
	e.beginSaga(rec)
	e.publish(event.NewResult(event.EventTypeDecreaseStarted, accountID, posID, pos.PositionAsset, positionAmount))

	if err := e.dispatch(ctx, rec, pos.PositionAsset, positionAmount, pos.DebtAsset, minDebtAmount); err != nil {
		e.compensate(rec)
		return fmt.Errorf("dispatch trade: %w", err)
	}
	return nil
}

// ClosePosition is a full unwind: a decrease of the entire position amount.
func (e *Engine) ClosePosition(ctx context.Context, accountID, posID string, minDebtAmount decimal.Decimal, prices risk.Prices) error {
	e.mu.Lock()
	amount := decimal.Zero
	pos, err := e.positions.Get(accountID, posID)
	if err == nil {
		amount = pos.PositionAmount
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return e.DecreasePosition(ctx, accountID, posID, amount, minDebtAmount, prices)
}

// OnResolveTransfer is the Phase 4 entry point: the coarse trade outcome.
// Failure compensates the prepare phase; success only advances the saga to
// await the exact fill. Replays are rejected by the phase check.
func (e *Engine) OnResolveTransfer(ev *event.TradeResolved) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dedup != nil && e.dedup.IsDuplicate(ev.EventType().String(), ev.IdempotencyKey()) {
		e.metrics.RecordCallback("resolve", "duplicate")
		return nil
	}
	rec, ok := e.sagas[sagaKey{ev.AccountID, ev.PosID}]
	if !ok || rec.Phase != PhaseAwaitingResolve || rec.Op != ev.Op {
		e.metrics.RecordCallback("resolve", "unexpected")
		return ErrUnexpectedCallback
	}

	if ev.Success {
		rec.Phase = PhaseAwaitingFill
		if e.records != nil {
			if err := e.records.UpdatePhase(rec.AccountID, rec.PosID, PhaseAwaitingFill); err != nil {
				e.logger.Error().Err(err).Str("account_id", rec.AccountID).Str("pos_id", rec.PosID).Msg("persist saga phase")
			}
		}
		e.logger.Info().Str("account_id", rec.AccountID).Str("pos_id", rec.PosID).Str("op", rec.Op.String()).Msg("trade resolved, awaiting fill")
	} else {
		e.compensate(rec)
	}

	if e.dedup != nil {
		e.dedup.MarkProcessed(ev.EventType().String(), ev.IdempotencyKey())
	}
	e.metrics.RecordCallback("resolve", "applied")
	return nil
}

// OnExactFill is the Phase 5 entry point: the asset actually received and
// its exact amount, finalizing share accounting.
func (e *Engine) OnExactFill(ev *event.ExactFill) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dedup != nil && e.dedup.IsDuplicate(ev.EventType().String(), ev.IdempotencyKey()) {
		e.metrics.RecordCallback("fill", "duplicate")
		return nil
	}
	rec, ok := e.sagas[sagaKey{ev.Ref.AccountID, ev.Ref.PosID}]
	if !ok || rec.Phase != PhaseAwaitingFill || rec.Op != ev.Ref.Op {
		e.metrics.RecordCallback("fill", "unexpected")
		return ErrUnexpectedCallback
	}

	var err error
	switch rec.Op {
	case event.OpOpen, event.OpIncrease:
		err = e.finalizeBorrow(rec, ev)
	case event.OpDecrease:
		err = e.finalizeRepay(rec, ev)
	default:
		err = ErrUnexpectedCallback
	}
	if err != nil {
		e.metrics.RecordCallback("fill", "error")
		return err
	}

	if e.dedup != nil {
		e.dedup.MarkProcessed(ev.EventType().String(), ev.IdempotencyKey())
	}
	e.metrics.RecordCallback("fill", "applied")
	return nil
}

// finalizeBorrow commits the reserved debt into the margin-debt pool and
// credits the position with the exact amount received.
func (e *Engine) finalizeBorrow(rec *Record, ev *event.ExactFill) error {
	pos, err := e.positions.Get(rec.AccountID, rec.PosID)
	if err != nil {
		return err
	}
	if ev.Asset != pos.PositionAsset {
		return ErrUnexpectedCallback
	}
	debtPool, err := e.ledger.Asset(pos.DebtAsset)
	if err != nil {
		return err
	}
	posPool, err := e.ledger.Asset(pos.PositionAsset)
	if err != nil {
		return err
	}

	shares := debtPool.CommitDebt(rec.ReservedAmount)
	pos.DebtShares = pos.DebtShares.Add(shares)
	pos.PositionAmount = pos.PositionAmount.Add(ev.Amount)
	posPool.AddPositionExposure(ev.Amount)
	pos.Status = position.StatusRunning

	e.endSaga(rec)
	resultType := event.EventTypeOpenSucceeded
	if rec.Op == event.OpIncrease {
		resultType = event.EventTypeIncreaseSucceeded
	}
	e.publish(event.NewResult(resultType, rec.AccountID, rec.PosID, pos.PositionAsset, ev.Amount))
	e.metrics.RecordOperation(rec.Op.String(), "succeeded")
	e.logger.Info().
		Str("pos_id", rec.PosID).
		Str("op", rec.Op.String()).
		Str("filled", ev.Amount.String()).
		Msg("position settled")
	return nil
}

// finalizeRepay repays debt from the exact amount received, capped at what
// is owed; any overfill is credited to the account's general supply rather
// than kept by the protocol, since overfills are expected when only a
// minimum output can be specified.
func (e *Engine) finalizeRepay(rec *Record, ev *event.ExactFill) error {
	pos, err := e.positions.Get(rec.AccountID, rec.PosID)
	if err != nil {
		return err
	}
	if ev.Asset != pos.DebtAsset {
		return ErrUnexpectedCallback
	}
	debtPool, err := e.ledger.Asset(pos.DebtAsset)
	if err != nil {
		return err
	}
	account := e.ledger.Account(rec.AccountID)

	owed := debtPool.MarginDebt.SharesToAmount(pos.DebtShares, true)
	repaid := decimal.Min(ev.Amount, owed)
	var repaidShares decimal.Decimal
	if repaid.Equal(owed) {
		repaidShares = pos.DebtShares
	} else {
		repaidShares = debtPool.MarginDebt.AmountToShares(repaid, false)
	}
	debtPool.RepayDebt(repaidShares, repaid)
	pos.DebtShares = pos.DebtShares.Sub(repaidShares)

	leftover := ev.Amount.Sub(repaid)
	if leftover.IsPositive() {
		dustShares := debtPool.Supplied.AmountToShares(leftover, false)
		debtPool.Supplied.Deposit(dustShares, leftover)
		account.DepositSupplyShares(pos.DebtAsset, dustShares)
	}

	e.endSaga(rec)
	e.publish(event.NewResult(event.EventTypeDecreaseSucceeded, rec.AccountID, rec.PosID, pos.DebtAsset, repaid))
	e.metrics.RecordOperation(rec.Op.String(), "succeeded")

	if pos.IsUnwound() {
		// Remaining margin goes back to the account's general supply; the
		// shares are already claims against the supplied pool, so they move
		// without touching pool balances. Deletion is the closed state.
		if pos.MarginShares.IsPositive() {
			account.DepositSupplyShares(pos.MarginAsset, pos.MarginShares)
			pos.MarginShares = decimal.Zero
		}
		if err := e.positions.Delete(rec.AccountID, rec.PosID); err != nil {
			return err
		}
		e.publish(event.NewResult(event.EventTypePositionClosed, rec.AccountID, rec.PosID, pos.MarginAsset, decimal.Zero))
		e.logger.Info().Str("pos_id", rec.PosID).Msg("position closed")
		return nil
	}
	pos.Status = position.StatusRunning
	return nil
}

// compensate undoes the prepare phase after a failed trade. Keyed off the
// recorded reservation, it is deterministic and runs at most once: the saga
// record is removed with it.
func (e *Engine) compensate(rec *Record) {
	switch rec.Op {
	case event.OpOpen:
		pos, err := e.positions.Get(rec.AccountID, rec.PosID)
		if err == nil {
			e.ledger.Account(rec.AccountID).DepositSupplyShares(pos.MarginAsset, pos.MarginShares)
			if debtPool, derr := e.ledger.Asset(pos.DebtAsset); derr == nil {
				debtPool.ReleasePendingDebt(rec.ReservedAmount)
			}
			_ = e.positions.Delete(rec.AccountID, rec.PosID)
			e.publish(event.NewResult(event.EventTypeOpenFailed, rec.AccountID, rec.PosID, pos.DebtAsset, rec.ReservedAmount))
		}
	case event.OpIncrease:
		pos, err := e.positions.Get(rec.AccountID, rec.PosID)
		if err == nil {
			if debtPool, derr := e.ledger.Asset(pos.DebtAsset); derr == nil {
				debtPool.ReleasePendingDebt(rec.ReservedAmount)
			}
			pos.Status = position.StatusRunning
			e.publish(event.NewResult(event.EventTypeIncreaseFailed, rec.AccountID, rec.PosID, pos.DebtAsset, rec.ReservedAmount))
		}
	case event.OpDecrease:
		pos, err := e.positions.Get(rec.AccountID, rec.PosID)
		if err == nil {
			// Restore the released exposure; the debt pool was never
			// touched in the prepare phase, so it needs no undo.
			pos.PositionAmount = pos.PositionAmount.Add(rec.ReservedAmount)
			if posPool, perr := e.ledger.Asset(pos.PositionAsset); perr == nil {
				posPool.AddPositionExposure(rec.ReservedAmount)
			}
			pos.Status = position.StatusRunning
			e.publish(event.NewResult(event.EventTypeDecreaseFailed, rec.AccountID, rec.PosID, pos.PositionAsset, rec.ReservedAmount))
		}
	}
	e.endSaga(rec)
	e.metrics.RecordOperation(rec.Op.String(), "compensated")
	e.logger.Warn().Str("pos_id", rec.PosID).Str("op", rec.Op.String()).Msg("trade failed, compensated")
}

// checkDeclaredOutput bounds the caller-declared output against the
// oracle-implied one: declared may not exceed it by more than the configured
// tolerance. This limits how far from fair value a caller can push the
// engine into authorizing a trade.
func (e *Engine) checkDeclaredOutput(declared, amountIn decimal.Decimal, assetIn, assetOut string, prices risk.Prices) error {
	if declared.LessThanOrEqual(decimal.Zero) || amountIn.LessThanOrEqual(decimal.Zero) {
		return ErrUnreasonableAmount
	}
	priceOut := prices.Price(assetOut)
	if priceOut.IsZero() {
		return ErrUnreasonableAmount
	}
	implied := amountIn.Mul(prices.Price(assetIn)).DivRound(priceOut, pool.AmountPlaces)
	if declared.GreaterThan(implied) {
		deviation := declared.Sub(implied).DivRound(declared, pool.AmountPlaces)
		if deviation.GreaterThan(e.cfg.PriceDeviationTolerance) {
			return ErrUnreasonableAmount
		}
	}
	return nil
}

// checkRisk applies the three post-trade limits to a hypothetical snapshot.
func (e *Engine) checkRisk(snap risk.Snapshot, prices risk.Prices) error {
	rates := e.rates()
	if risk.HealthFactor(snap, prices, rates).LessThan(e.cfg.MinOpenHealthFactor) {
		return ErrHealthFactorTooLow
	}
	if risk.LeverageRatio(snap, prices).GreaterThan(e.cfg.MaxLeverageRate) {
		return ErrLeverageTooHigh
	}
	if risk.MarginValue(snap, prices).GreaterThan(e.cfg.MaxMarginValue) {
		return ErrMarginTooHigh
	}
	return nil
}

// snapshotOf converts a committed position's share claims into the amount
// snapshot the risk formulas work over.
func (e *Engine) snapshotOf(pos *position.MarginPosition) risk.Snapshot {
	snap := risk.Snapshot{
		MarginAsset:    pos.MarginAsset,
		DebtAsset:      pos.DebtAsset,
		PositionAsset:  pos.PositionAsset,
		PositionAmount: pos.PositionAmount,
	}
	if marginPool, err := e.ledger.Asset(pos.MarginAsset); err == nil {
		snap.MarginAmount = marginPool.Supplied.SharesToAmount(pos.MarginShares, false)
	}
	if debtPool, err := e.ledger.Asset(pos.DebtAsset); err == nil {
		snap.DebtAmount = debtPool.MarginDebt.SharesToAmount(pos.DebtShares, true)
	}
	return snap
}

func (e *Engine) rates() risk.Rates {
	rates := make(risk.Rates)
	for _, symbol := range e.ledger.AssetSymbols() {
		if a, err := e.ledger.Asset(symbol); err == nil {
			rates[symbol] = a.FluctuationRate
		}
	}
	return rates
}

func (e *Engine) dispatch(ctx context.Context, rec *Record, assetIn string, amountIn decimal.Decimal, assetOut string, minAmountOut decimal.Decimal) error {
	if e.dex == nil {
		return nil
	}
	return e.dex.Trade(ctx, assetIn, amountIn, assetOut, minAmountOut, rec.Ref())
}

func (e *Engine) beginSaga(rec *Record) {
	e.sagas[sagaKey{rec.AccountID, rec.PosID}] = rec
	if e.records != nil {
		if err := e.records.Save(rec); err != nil {
			e.logger.Error().Err(err).Str("account_id", rec.AccountID).Str("pos_id", rec.PosID).Msg("persist saga record")
		}
	}
	e.metrics.SetSagasInFlight(len(e.sagas))
	e.metrics.RecordOperation(rec.Op.String(), "started")
	e.refreshPoolGauges()
}

func (e *Engine) endSaga(rec *Record) {
	delete(e.sagas, sagaKey{rec.AccountID, rec.PosID})
	if e.records != nil {
		if err := e.records.Delete(rec.AccountID, rec.PosID); err != nil {
			e.logger.Error().Err(err).Str("account_id", rec.AccountID).Str("pos_id", rec.PosID).Msg("delete saga record")
		}
	}
	e.metrics.SetSagasInFlight(len(e.sagas))
	if !rec.StartedAt.IsZero() {
		e.metrics.ObserveSagaDuration(time.Since(rec.StartedAt))
	}
	e.refreshPoolGauges()
}

// refreshPoolGauges republishes the per-asset liquidity gauges after an
// operation that moved pool balances.
func (e *Engine) refreshPoolGauges() {
	if e.metrics == nil {
		return
	}
	for _, symbol := range e.ledger.AssetSymbols() {
		if a, err := e.ledger.Asset(symbol); err == nil {
			e.metrics.SetPoolState(symbol, a.PendingDebt.InexactFloat64(), a.AvailableAmount().InexactFloat64())
		}
	}
}

func (e *Engine) publish(r *event.Result) {
	if e.emit != nil {
		e.emit(r)
	}
}
