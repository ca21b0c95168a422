package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"synthd/crypto"
	"synthd/storage"
)

var (
	collateralPrefix = []byte("synth/collateral/")
	debtPrefix       = []byte("synth/debt/")
	depositedPrefix  = []byte("synth/deposited/")
)

type journalEntry struct {
	key     []byte
	prev    []byte
	existed bool
}

// Ledger persists collateral and debt positions in a key-value store. Every
// write is journaled so an enclosing operation can be unwound as a unit:
// callers take a Snapshot before mutating and either RevertToSnapshot on
// failure or DiscardSnapshots once committed.
type Ledger struct {
	mu      sync.Mutex
	db      storage.Database
	journal []journalEntry
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

func addressKey(addr crypto.Address) []byte {
	out := append([]byte(string(addr.Prefix())), '/')
	return append(out, addr.Bytes()...)
}

func collateralKey(addr crypto.Address, asset string) []byte {
	key := append(append([]byte(nil), collateralPrefix...), addressKey(addr)...)
	key = append(key, '/')
	return append(key, asset...)
}

func debtKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), debtPrefix...), addressKey(addr)...)
}

func depositedKey(asset string) []byte {
	return append(append([]byte(nil), depositedPrefix...), asset...)
}

func (l *Ledger) readAmount(key []byte) (*big.Int, error) {
	raw, err := l.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(raw, amount); err != nil {
		return nil, fmt.Errorf("state: decode amount: %w", err)
	}
	return amount, nil
}

func (l *Ledger) writeAmount(key []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: amount must be non-negative")
	}

	l.mu.Lock()
	entry := journalEntry{key: append([]byte(nil), key...)}
	if prev, err := l.db.Get(key); err == nil {
		entry.prev = prev
		entry.existed = true
	} else if !errors.Is(err, storage.ErrNotFound) {
		l.mu.Unlock()
		return err
	}
	l.journal = append(l.journal, entry)
	l.mu.Unlock()

	if amount.Sign() == 0 {
		return l.db.Delete(key)
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return fmt.Errorf("state: encode amount: %w", err)
	}
	return l.db.Put(key, encoded)
}

// CollateralBalance returns the deposited amount for (user, asset). Missing
// positions read as zero.
func (l *Ledger) CollateralBalance(addr crypto.Address, asset string) (*big.Int, error) {
	return l.readAmount(collateralKey(addr, asset))
}

// SetCollateralBalance stores the deposited amount for (user, asset). Zero
// amounts remove the record.
func (l *Ledger) SetCollateralBalance(addr crypto.Address, asset string, amount *big.Int) error {
	return l.writeAmount(collateralKey(addr, asset), amount)
}

// DebtBalance returns the minted debt for the user.
func (l *Ledger) DebtBalance(addr crypto.Address) (*big.Int, error) {
	return l.readAmount(debtKey(addr))
}

// SetDebtBalance stores the minted debt for the user.
func (l *Ledger) SetDebtBalance(addr crypto.Address, amount *big.Int) error {
	return l.writeAmount(debtKey(addr), amount)
}

// TotalDeposited returns the aggregate collateral held in custody for the
// asset across all users.
func (l *Ledger) TotalDeposited(asset string) (*big.Int, error) {
	return l.readAmount(depositedKey(asset))
}

// SetTotalDeposited stores the aggregate custody amount for the asset.
func (l *Ledger) SetTotalDeposited(asset string, amount *big.Int) error {
	return l.writeAmount(depositedKey(asset), amount)
}

// Snapshot returns a revision identifier for the current journal position.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.journal)
}

// RevertToSnapshot restores every key written after the identifier to its
// previous value.
func (l *Ledger) RevertToSnapshot(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 0 || id > len(l.journal) {
		return
	}
	for i := len(l.journal) - 1; i >= id; i-- {
		entry := l.journal[i]
		if entry.existed {
			// Best effort: the backing store accepted these keys moments ago.
			_ = l.db.Put(entry.key, entry.prev)
		} else {
			_ = l.db.Delete(entry.key)
		}
	}
	l.journal = l.journal[:id]
}

// DiscardSnapshots releases journal history once the enclosing operation has
// committed. Operations are serialized by the engine, so no older snapshot
// can remain outstanding and the whole journal is dropped.
func (l *Ledger) DiscardSnapshots(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 0 || id > len(l.journal) {
		return
	}
	l.journal = l.journal[:0]
}
