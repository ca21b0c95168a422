package synth

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"synthd/core/events"
	"synthd/crypto"
	nativecommon "synthd/native/common"
	"synthd/native/oracle"
	"synthd/native/token"
)

// EngineState is the persistence surface the engine mutates. Implementations
// must journal writes so an operation can be unwound as a unit.
type EngineState interface {
	CollateralBalance(addr crypto.Address, asset string) (*big.Int, error)
	SetCollateralBalance(addr crypto.Address, asset string, amount *big.Int) error
	DebtBalance(addr crypto.Address) (*big.Int, error)
	SetDebtBalance(addr crypto.Address, amount *big.Int) error
	TotalDeposited(asset string) (*big.Int, error)
	SetTotalDeposited(asset string, amount *big.Int) error
	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshots(id int)
}

// Engine orchestrates the state transitions of the synthetic-asset module:
// deposit, mint, redeem, burn and liquidate. Every mutating operation updates
// the ledgers first, then performs external transfers, then re-validates the
// affected health factors; any failure unwinds the whole operation through
// the state journal.
type Engine struct {
	state    EngineState
	registry *Registry
	prices   oracle.Source
	issuer   token.Issuer
	tokens   map[string]token.Token
	custody  crypto.Address
	emitter  events.Emitter
	pauses   nativecommon.PauseView

	guardMu sync.Mutex
	entered bool
}

// NewEngine constructs an engine for the registered collateral set. Custody is
// the address holding deposited collateral and pulled issued assets.
func NewEngine(custody crypto.Address, registry *Registry, issuer token.Issuer, prices oracle.Source) (*Engine, error) {
	if registry == nil {
		return nil, errRegistryEmpty
	}
	if issuer == nil {
		return nil, errNilIssuer
	}
	if prices == nil {
		return nil, errNilOracle
	}
	return &Engine{
		registry: registry,
		prices:   prices,
		issuer:   issuer,
		tokens:   make(map[string]token.Token),
		custody:  custody,
		emitter:  events.NoopEmitter{},
	}, nil
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetEmitter wires the downstream event sink. A nil emitter restores the
// discard default.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetPauses wires the operator pause switches consulted before every
// mutating operation.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// BindCollateral attaches the transfer capability for a registered asset.
func (e *Engine) BindCollateral(asset string, tok token.Token) error {
	if !e.registry.Supports(asset) {
		return ErrAssetNotSupported
	}
	if tok == nil {
		return errNoToken
	}
	e.tokens[normalised(asset)] = tok
	return nil
}

// Registry exposes the immutable collateral registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Custody returns the engine's custody address.
func (e *Engine) Custody() crypto.Address { return e.custody }

func normalised(asset string) string {
	return strings.ToLower(strings.TrimSpace(asset))
}

func (e *Engine) collateralToken(asset string) (token.Token, error) {
	tok, ok := e.tokens[normalised(asset)]
	if !ok {
		return nil, errNoToken
	}
	return tok, nil
}

// opScope tracks the journal snapshots and pending events of a single
// operation so failure can unwind ledger and token effects together.
type opScope struct {
	engine    *Engine
	stateSnap int
	snaps     []tokenSnap
	pending   []events.Event
}

type tokenSnap struct {
	ledger token.Snapshotter
	id     int
}

func (e *Engine) beginOp() (*opScope, error) {
	if e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	e.guardMu.Lock()
	if e.entered {
		e.guardMu.Unlock()
		return nil, ErrReentrantCall
	}
	e.entered = true
	e.guardMu.Unlock()

	scope := &opScope{engine: e, stateSnap: e.state.Snapshot()}
	seen := make(map[token.Snapshotter]bool)
	record := func(candidate interface{}) {
		ledger, ok := candidate.(token.Snapshotter)
		if !ok || seen[ledger] {
			return
		}
		seen[ledger] = true
		scope.snaps = append(scope.snaps, tokenSnap{ledger: ledger, id: ledger.Snapshot()})
	}
	record(e.issuer)
	for _, tok := range e.tokens {
		record(tok)
	}
	return scope, nil
}

// emit defers the event until the operation commits; an unwound operation
// must not notify subscribers.
func (s *opScope) emit(evt events.Event) {
	s.pending = append(s.pending, evt)
}

// finish commits or unwinds the operation and releases the reentrancy guard.
func (s *opScope) finish(err error) error {
	e := s.engine
	if err != nil {
		for i := len(s.snaps) - 1; i >= 0; i-- {
			s.snaps[i].ledger.RevertToSnapshot(s.snaps[i].id)
		}
		e.state.RevertToSnapshot(s.stateSnap)
	} else {
		e.state.DiscardSnapshots(s.stateSnap)
		for _, snap := range s.snaps {
			snap.ledger.DiscardSnapshots(snap.id)
		}
		for _, evt := range s.pending {
			e.emitter.Emit(evt)
		}
	}

	e.guardMu.Lock()
	e.entered = false
	e.guardMu.Unlock()
	return err
}

// Deposit locks collateral in engine custody. Depositing can only improve the
// health factor, so no solvency check is needed.
func (e *Engine) Deposit(user crypto.Address, asset string, amount *big.Int) error {
	scope, err := e.beginOp()
	if err != nil {
		return err
	}
	return scope.finish(e.deposit(scope, user, asset, amount))
}

func (e *Engine) deposit(scope *opScope, user crypto.Address, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset = normalised(asset)
	if !e.registry.Supports(asset) {
		return ErrAssetNotSupported
	}
	tok, err := e.collateralToken(asset)
	if err != nil {
		return err
	}

	balance, err := e.state.CollateralBalance(user, asset)
	if err != nil {
		return err
	}
	if err := e.state.SetCollateralBalance(user, asset, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	total, err := e.state.TotalDeposited(asset)
	if err != nil {
		return err
	}
	if err := e.state.SetTotalDeposited(asset, new(big.Int).Add(total, amount)); err != nil {
		return err
	}

	scope.emit(events.CollateralDeposited{User: user, Asset: asset, Amount: new(big.Int).Set(amount)})

	if err := tok.TransferFrom(user, e.custody, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

// Mint issues new synthetic units against the user's collateral. Debt is
// recorded before the issuance request and before the health check, so a
// failed check unwinds the whole operation including the not-yet-issued mint.
func (e *Engine) Mint(user crypto.Address, amount *big.Int) error {
	scope, err := e.beginOp()
	if err != nil {
		return err
	}
	return scope.finish(e.mint(scope, user, amount))
}

func (e *Engine) mint(scope *opScope, user crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	debt, err := e.state.DebtBalance(user)
	if err != nil {
		return err
	}
	if err := e.state.SetDebtBalance(user, new(big.Int).Add(debt, amount)); err != nil {
		return err
	}

	scope.emit(events.DebtMinted{User: user, Amount: new(big.Int).Set(amount)})

	if err := e.assertHealthy(user); err != nil {
		return err
	}
	if err := e.issuer.Mint(user, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrMintFailed, err)
	}
	return nil
}

// DepositAndMint composes Deposit then Mint atomically.
func (e *Engine) DepositAndMint(user crypto.Address, asset string, collateralAmount, debtAmount *big.Int) error {
	scope, err := e.beginOp()
	if err != nil {
		return err
	}
	err = e.deposit(scope, user, asset, collateralAmount)
	if err == nil {
		err = e.mint(scope, user, debtAmount)
	}
	return scope.finish(err)
}

// Redeem releases collateral back to the user; the position must remain
// healthy afterwards.
func (e *Engine) Redeem(user crypto.Address, asset string, amount *big.Int) error {
	scope, err := e.beginOp()
	if err != nil {
		return err
	}
	err = e.redeem(scope, user, user, asset, amount)
	if err == nil {
		err = e.assertHealthy(user)
	}
	return scope.finish(err)
}

func (e *Engine) redeem(scope *opScope, owner, recipient crypto.Address, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset = normalised(asset)
	if !e.registry.Supports(asset) {
		return ErrAssetNotSupported
	}
	tok, err := e.collateralToken(asset)
	if err != nil {
		return err
	}

	balance, err := e.state.CollateralBalance(owner, asset)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := e.state.SetCollateralBalance(owner, asset, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	total, err := e.state.TotalDeposited(asset)
	if err != nil {
		return err
	}
	if total.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := e.state.SetTotalDeposited(asset, new(big.Int).Sub(total, amount)); err != nil {
		return err
	}

	scope.emit(events.CollateralRedeemed{From: owner, To: recipient, Asset: asset, Amount: new(big.Int).Set(amount)})

	if err := tok.Transfer(recipient, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

// Burn retires synthetic units pulled from the user, reducing their debt.
// Burning only improves the health factor; the trailing check is a safety
// net, not a binding constraint.
func (e *Engine) Burn(user crypto.Address, amount *big.Int) error {
	scope, err := e.beginOp()
	if err != nil {
		return err
	}
	err = e.burn(scope, user, user, amount)
	if err == nil {
		err = e.assertHealthy(user)
	}
	return scope.finish(err)
}

func (e *Engine) burn(scope *opScope, onBehalfOf, payer crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	debt, err := e.state.DebtBalance(onBehalfOf)
	if err != nil {
		return err
	}
	if debt.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := e.state.SetDebtBalance(onBehalfOf, new(big.Int).Sub(debt, amount)); err != nil {
		return err
	}

	scope.emit(events.DebtBurned{OnBehalfOf: onBehalfOf, Payer: payer, Amount: new(big.Int).Set(amount)})

	if err := e.issuer.TransferFrom(payer, e.custody, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.issuer.Burn(amount); err != nil {
		return fmt.Errorf("synth engine: burn issued asset: %w", err)
	}
	return nil
}

// RedeemForBurn composes Burn then Redeem atomically. Burning debt first
// keeps the redeem health check less restrictive.
func (e *Engine) RedeemForBurn(user crypto.Address, asset string, collateralAmount, debtAmount *big.Int) error {
	scope, err := e.beginOp()
	if err != nil {
		return err
	}
	err = e.burn(scope, user, user, debtAmount)
	if err == nil {
		err = e.redeem(scope, user, user, asset, collateralAmount)
	}
	if err == nil {
		err = e.assertHealthy(user)
	}
	return scope.finish(err)
}

// Liquidate lets a third party cover part of an unhealthy account's debt in
// exchange for the equivalent collateral plus a 10% bonus. The target's
// health factor must strictly improve and the liquidator's own position must
// remain solvent.
//
// When aggregate collateral value falls to 100% of outstanding debt or below,
// the bonus cannot be economically funded from seized collateral; that
// solvency-crisis shortfall is a disclosed limitation and is not masked here.
func (e *Engine) Liquidate(liquidator, user crypto.Address, asset string, debtToCover *big.Int) error {
	scope, err := e.beginOp()
	if err != nil {
		return err
	}
	return scope.finish(e.liquidate(scope, liquidator, user, asset, debtToCover))
}

func (e *Engine) liquidate(scope *opScope, liquidator, user crypto.Address, asset string, debtToCover *big.Int) error {
	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return ErrInvalidAmount
	}
	startingHealth, err := e.HealthFactor(user)
	if err != nil {
		return err
	}
	if startingHealth.Cmp(minHealthFactor) >= 0 {
		return ErrHealthFactorOK
	}

	seizedBase, err := e.AmountFromUSD(asset, debtToCover)
	if err != nil {
		return err
	}
	bonus := new(big.Int).Mul(seizedBase, big.NewInt(liquidationBonus))
	bonus.Quo(bonus, big.NewInt(liquidationPrecision))
	totalSeized := new(big.Int).Add(seizedBase, bonus)

	if err := e.redeem(scope, user, liquidator, asset, totalSeized); err != nil {
		return err
	}
	if err := e.burn(scope, user, liquidator, debtToCover); err != nil {
		return err
	}

	endingHealth, err := e.HealthFactor(user)
	if err != nil {
		return err
	}
	if endingHealth.Cmp(startingHealth) <= 0 {
		return ErrHealthFactorNotImproved
	}

	scope.emit(events.Liquidated{
		Liquidator:       liquidator,
		User:             user,
		Asset:            normalised(asset),
		DebtCovered:      new(big.Int).Set(debtToCover),
		CollateralSeized: totalSeized,
	})

	return e.assertHealthy(liquidator)
}
