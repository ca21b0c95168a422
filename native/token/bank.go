package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"synthd/crypto"
)

var (
	// ErrInsufficientFunds indicates a transfer or burn exceeding the payer's
	// balance.
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	// ErrInvalidAmount indicates a nil or non-positive amount.
	ErrInvalidAmount = errors.New("token: amount must be positive")
)

type journalEntry struct {
	asset  string
	holder string
	supply bool
	prev   *big.Int
}

// Bank is an in-process multi-asset balance ledger. It backs both the
// collateral tokens and the issued synthetic unit in deployments where the
// whole system runs inside one process, and doubles as the test double for
// the engine's token capabilities. All mutations are journaled so an
// enclosing operation can revert them as a unit.
type Bank struct {
	mu       sync.RWMutex
	balances map[string]map[string]*big.Int
	supply   map[string]*big.Int
	journal  []journalEntry
}

// NewBank constructs an empty bank.
func NewBank() *Bank {
	return &Bank{
		balances: make(map[string]map[string]*big.Int),
		supply:   make(map[string]*big.Int),
	}
}

func holderKey(addr crypto.Address) string {
	return string(addr.Prefix()) + "/" + string(addr.Bytes())
}

func (b *Bank) balance(asset string, holder string) *big.Int {
	holders, ok := b.balances[asset]
	if !ok {
		return nil
	}
	return holders[holder]
}

func (b *Bank) recordBalance(asset, holder string) {
	prev := b.balance(asset, holder)
	if prev != nil {
		prev = new(big.Int).Set(prev)
	}
	b.journal = append(b.journal, journalEntry{asset: asset, holder: holder, prev: prev})
}

func (b *Bank) recordSupply(asset string) {
	prev := b.supply[asset]
	if prev != nil {
		prev = new(big.Int).Set(prev)
	}
	b.journal = append(b.journal, journalEntry{asset: asset, supply: true, prev: prev})
}

func (b *Bank) setBalance(asset, holder string, amount *big.Int) {
	holders, ok := b.balances[asset]
	if !ok {
		holders = make(map[string]*big.Int)
		b.balances[asset] = holders
	}
	if amount == nil {
		delete(holders, holder)
		return
	}
	holders[holder] = amount
}

// Credit adds funds to an account outside of any transfer flow. Intended for
// genesis allocation and tests.
func (b *Bank) Credit(asset string, addr crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	holder := holderKey(addr)
	b.recordBalance(asset, holder)
	current := b.balance(asset, holder)
	if current == nil {
		current = big.NewInt(0)
	}
	b.setBalance(asset, holder, new(big.Int).Add(current, amount))
	return nil
}

// BalanceOf returns a copy of the holder's balance for the asset.
func (b *Bank) BalanceOf(asset string, addr crypto.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	current := b.balance(asset, holderKey(addr))
	if current == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(current)
}

// Supply returns a copy of the tracked supply for the asset.
func (b *Bank) Supply(asset string) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	current := b.supply[asset]
	if current == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(current)
}

func (b *Bank) transfer(asset string, from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fromKey := holderKey(from)
	toKey := holderKey(to)
	current := b.balance(asset, fromKey)
	if current == nil || current.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, asset)
	}
	b.recordBalance(asset, fromKey)
	b.recordBalance(asset, toKey)
	b.setBalance(asset, fromKey, new(big.Int).Sub(current, amount))
	dest := b.balance(asset, toKey)
	if dest == nil {
		dest = big.NewInt(0)
	}
	b.setBalance(asset, toKey, new(big.Int).Add(dest, amount))
	return nil
}

func (b *Bank) mint(asset string, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	toKey := holderKey(to)
	b.recordSupply(asset)
	b.recordBalance(asset, toKey)
	supply := b.supply[asset]
	if supply == nil {
		supply = big.NewInt(0)
	}
	b.supply[asset] = new(big.Int).Add(supply, amount)
	dest := b.balance(asset, toKey)
	if dest == nil {
		dest = big.NewInt(0)
	}
	b.setBalance(asset, toKey, new(big.Int).Add(dest, amount))
	return nil
}

func (b *Bank) burn(asset string, from crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fromKey := holderKey(from)
	current := b.balance(asset, fromKey)
	if current == nil || current.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, asset)
	}
	supply := b.supply[asset]
	if supply == nil || supply.Cmp(amount) < 0 {
		return fmt.Errorf("token: burn exceeds tracked supply for %s", asset)
	}
	b.recordSupply(asset)
	b.recordBalance(asset, fromKey)
	b.supply[asset] = new(big.Int).Sub(supply, amount)
	b.setBalance(asset, fromKey, new(big.Int).Sub(current, amount))
	return nil
}

// Snapshot returns a revision identifier for the current journal position.
func (b *Bank) Snapshot() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.journal)
}

// RevertToSnapshot unwinds every mutation recorded after the identifier.
func (b *Bank) RevertToSnapshot(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id < 0 || id > len(b.journal) {
		return
	}
	for i := len(b.journal) - 1; i >= id; i-- {
		entry := b.journal[i]
		if entry.supply {
			if entry.prev == nil {
				delete(b.supply, entry.asset)
			} else {
				b.supply[entry.asset] = entry.prev
			}
			continue
		}
		b.setBalance(entry.asset, entry.holder, entry.prev)
	}
	b.journal = b.journal[:id]
}

// DiscardSnapshots releases journal history once the enclosing operation has
// committed. Operations are serialized by the engine, so no older snapshot
// can remain outstanding and the whole journal is dropped.
func (b *Bank) DiscardSnapshots(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id < 0 || id > len(b.journal) {
		return
	}
	b.journal = b.journal[:0]
}

// Binding exposes a single bank asset through the Token interface, with
// Transfer debiting the bound holder.
type Binding struct {
	bank   *Bank
	asset  string
	holder crypto.Address
}

// Bind returns a Token view over the asset, anchored at the holder that will
// fund plain Transfer calls.
func (b *Bank) Bind(asset string, holder crypto.Address) *Binding {
	return &Binding{bank: b, asset: asset, holder: holder}
}

func (t *Binding) Transfer(to crypto.Address, amount *big.Int) error {
	return t.bank.transfer(t.asset, t.holder, to, amount)
}

func (t *Binding) TransferFrom(from, to crypto.Address, amount *big.Int) error {
	return t.bank.transfer(t.asset, from, to, amount)
}

// Snapshot delegates to the underlying bank journal.
func (t *Binding) Snapshot() int { return t.bank.Snapshot() }

// RevertToSnapshot delegates to the underlying bank journal.
func (t *Binding) RevertToSnapshot(id int) { t.bank.RevertToSnapshot(id) }

// DiscardSnapshots delegates to the underlying bank journal.
func (t *Binding) DiscardSnapshots(id int) { t.bank.DiscardSnapshots(id) }

// IssuerBinding exposes a bank asset through the Issuer interface, with Burn
// debiting the bound holder (the engine's custody account).
type IssuerBinding struct {
	bank   *Bank
	asset  string
	holder crypto.Address
}

// BindIssuer returns an Issuer view over the asset anchored at the custody
// holder whose balance funds Burn calls.
func (b *Bank) BindIssuer(asset string, holder crypto.Address) *IssuerBinding {
	return &IssuerBinding{bank: b, asset: asset, holder: holder}
}

func (t *IssuerBinding) Mint(to crypto.Address, amount *big.Int) error {
	return t.bank.mint(t.asset, to, amount)
}

func (t *IssuerBinding) Burn(amount *big.Int) error {
	return t.bank.burn(t.asset, t.holder, amount)
}

func (t *IssuerBinding) TransferFrom(from, to crypto.Address, amount *big.Int) error {
	return t.bank.transfer(t.asset, from, to, amount)
}

// Snapshot delegates to the underlying bank journal.
func (t *IssuerBinding) Snapshot() int { return t.bank.Snapshot() }

// RevertToSnapshot delegates to the underlying bank journal.
func (t *IssuerBinding) RevertToSnapshot(id int) { t.bank.RevertToSnapshot(id) }

// DiscardSnapshots delegates to the underlying bank journal.
func (t *IssuerBinding) DiscardSnapshots(id int) { t.bank.DiscardSnapshots(id) }
