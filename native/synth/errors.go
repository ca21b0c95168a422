package synth

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	errNilState  = errors.New("synth engine: state not configured")
	errNilIssuer = errors.New("synth engine: issuer not configured")
	errNilOracle = errors.New("synth engine: price source not configured")
	errNoToken   = errors.New("synth engine: collateral token not bound")

	// ErrInvalidAmount rejects zero or negative amounts where a positive
	// amount is required.
	ErrInvalidAmount = errors.New("synth engine: amount must be positive")
	// ErrAssetNotSupported rejects assets absent from the registry.
	ErrAssetNotSupported = errors.New("synth engine: collateral asset not supported")
	// ErrTransferFailed wraps a declined token transfer.
	ErrTransferFailed = errors.New("synth engine: token transfer failed")
	// ErrInsufficientBalance rejects a ledger decrement that would go negative.
	ErrInsufficientBalance = errors.New("synth engine: insufficient balance")
	// ErrMintFailed wraps a declined issuance request.
	ErrMintFailed = errors.New("synth engine: issuer declined mint")
	// ErrHealthFactorOK rejects liquidation of a healthy account.
	ErrHealthFactorOK = errors.New("synth engine: health factor above minimum")
	// ErrHealthFactorNotImproved rejects a liquidation that did not strictly
	// improve the target's health factor.
	ErrHealthFactorNotImproved = errors.New("synth engine: liquidation did not improve health factor")
	// ErrReentrantCall rejects a mutating call issued while another operation
	// is in flight.
	ErrReentrantCall = errors.New("synth engine: reentrant call rejected")
	// ErrBreaksHealthFactor is the sentinel matched by errors.Is against
	// BreaksHealthFactorError values.
	ErrBreaksHealthFactor = errors.New("synth engine: operation breaks health factor")
)

// BreaksHealthFactorError carries the offending 1e18-scaled health factor of
// the account that failed the solvency check.
type BreaksHealthFactorError struct {
	HealthFactor *big.Int
}

func (e *BreaksHealthFactorError) Error() string {
	return fmt.Sprintf("synth engine: health factor %s below minimum", e.HealthFactor)
}

// Is lets errors.Is(err, ErrBreaksHealthFactor) match.
func (e *BreaksHealthFactorError) Is(target error) bool {
	return target == ErrBreaksHealthFactor
}
