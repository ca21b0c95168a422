package synth

import "math/big"

const moduleName = "synth"

const (
	// liquidationThreshold of 50 out of liquidationPrecision encodes the 200%
	// minimum collateralization ratio: only half of the collateral value
	// counts toward the health factor.
	liquidationThreshold = 50
	liquidationPrecision = 100
	// liquidationBonus is the extra share of seized collateral awarded to a
	// liquidator, out of liquidationPrecision.
	liquidationBonus = 10
)

var (
	// precision is the 1e18 fixed-point scale shared by debt amounts, USD
	// values and health factors.
	precision = big.NewInt(1_000_000_000_000_000_000)
	// minHealthFactor is 1.0 in fixed-point terms; positions below it are
	// unhealthy.
	minHealthFactor = big.NewInt(1_000_000_000_000_000_000)
	// maxHealthFactor is the sentinel returned for debt-free accounts.
	maxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	ten             = big.NewInt(10)
)

// MinHealthFactor returns a copy of the 1e18-scaled pass/fail threshold.
func MinHealthFactor() *big.Int {
	return new(big.Int).Set(minHealthFactor)
}

// MaxHealthFactor returns a copy of the sentinel used for debt-free accounts.
func MaxHealthFactor() *big.Int {
	return new(big.Int).Set(maxHealthFactor)
}
