package synth

import "math/big"

// AccountInformation summarises a user's position: outstanding minted debt
// (1e18 precision) and the USD value of all deposited collateral.
type AccountInformation struct {
	DebtMinted         *big.Int
	CollateralValueUSD *big.Int
}

// Clone returns a deep copy to keep callers from mutating shared values.
func (a AccountInformation) Clone() AccountInformation {
	clone := AccountInformation{}
	if a.DebtMinted != nil {
		clone.DebtMinted = new(big.Int).Set(a.DebtMinted)
	}
	if a.CollateralValueUSD != nil {
		clone.CollateralValueUSD = new(big.Int).Set(a.CollateralValueUSD)
	}
	return clone
}
