package token

import (
	"math/big"

	"synthd/crypto"
)

// Token is the transfer capability the engine requires from a collateral
// asset. Transfer moves funds out of the bound holder's balance; TransferFrom
// moves funds between arbitrary accounts on the holder's authority.
type Token interface {
	Transfer(to crypto.Address, amount *big.Int) error
	TransferFrom(from, to crypto.Address, amount *big.Int) error
}

// Issuer is the issued-asset ledger capability: supply expansion and
// contraction plus transfers of the issued unit.
type Issuer interface {
	Mint(to crypto.Address, amount *big.Int) error
	Burn(amount *big.Int) error
	TransferFrom(from, to crypto.Address, amount *big.Int) error
}

// Snapshotter is implemented by in-process token ledgers that can participate
// in an operation-scoped rollback. DiscardSnapshots releases journal history
// once the enclosing operation has committed.
type Snapshotter interface {
	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshots(id int)
}
