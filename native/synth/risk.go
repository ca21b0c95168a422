package synth

import (
	"fmt"
	"math/big"

	"synthd/crypto"
)

// scaledPrice resolves the asset's latest quote and scales it to 1e18
// precision. Oracle failures (unavailable or stale) propagate and abort the
// enclosing operation.
func (e *Engine) scaledPrice(asset string) (*big.Int, error) {
	feed, ok := e.registry.Feed(asset)
	if !ok {
		return nil, ErrAssetNotSupported
	}
	if e.prices == nil {
		return nil, errNilOracle
	}
	quote, err := e.prices.LatestPrice(feed)
	if err != nil {
		return nil, err
	}
	if quote.Decimals > 18 {
		return nil, fmt.Errorf("synth engine: feed %s precision %d exceeds 1e18 scale", feed, quote.Decimals)
	}
	adjustment := new(big.Int).Exp(ten, big.NewInt(int64(18-quote.Decimals)), nil)
	return adjustment.Mul(adjustment, quote.Price), nil
}

// ValueOf converts an asset amount to its 1e18-scaled USD value using the
// latest non-stale price.
func (e *Engine) ValueOf(asset string, amount *big.Int) (*big.Int, error) {
	if amount == nil {
		amount = big.NewInt(0)
	}
	price, err := e.scaledPrice(asset)
	if err != nil {
		return nil, err
	}
	value := new(big.Int).Mul(price, amount)
	return value.Quo(value, precision), nil
}

// AmountFromUSD translates a 1e18-scaled USD figure into an asset amount at
// the latest non-stale price. Used to size liquidation seizures.
func (e *Engine) AmountFromUSD(asset string, usdValue *big.Int) (*big.Int, error) {
	if usdValue == nil {
		usdValue = big.NewInt(0)
	}
	price, err := e.scaledPrice(asset)
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Mul(usdValue, precision)
	return amount.Quo(amount, price), nil
}

// TotalCollateralValue sums the USD value of every registered asset's
// deposited balance for the user. Zero balances contribute zero.
func (e *Engine) TotalCollateralValue(addr crypto.Address) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	total := big.NewInt(0)
	for _, asset := range e.registry.Assets() {
		balance, err := e.state.CollateralBalance(addr, asset.Symbol)
		if err != nil {
			return nil, err
		}
		if balance.Sign() == 0 {
			continue
		}
		value, err := e.ValueOf(asset.Symbol, balance)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

// CollateralBalance returns the deposited amount for (user, asset).
func (e *Engine) CollateralBalance(addr crypto.Address, asset string) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	asset = normalised(asset)
	if !e.registry.Supports(asset) {
		return nil, ErrAssetNotSupported
	}
	return e.state.CollateralBalance(addr, asset)
}

// TotalDeposited returns the aggregate custody balance for the asset across
// all users.
func (e *Engine) TotalDeposited(asset string) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	asset = normalised(asset)
	if !e.registry.Supports(asset) {
		return nil, ErrAssetNotSupported
	}
	return e.state.TotalDeposited(asset)
}

// AccountInformation reports the user's minted debt and total collateral
// value.
func (e *Engine) AccountInformation(addr crypto.Address) (AccountInformation, error) {
	if e.state == nil {
		return AccountInformation{}, errNilState
	}
	debt, err := e.state.DebtBalance(addr)
	if err != nil {
		return AccountInformation{}, err
	}
	collateral, err := e.TotalCollateralValue(addr)
	if err != nil {
		return AccountInformation{}, err
	}
	return AccountInformation{DebtMinted: debt, CollateralValueUSD: collateral}, nil
}

// HealthFactor computes the 1e18-scaled distance from liquidation:
// (collateralValue * threshold / 100) * 1e18 / debt. Debt-free accounts
// report the maximal sentinel value.
func (e *Engine) HealthFactor(addr crypto.Address) (*big.Int, error) {
	info, err := e.AccountInformation(addr)
	if err != nil {
		return nil, err
	}
	return healthFactor(info.CollateralValueUSD, info.DebtMinted), nil
}

func healthFactor(collateralValueUSD, debt *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(maxHealthFactor)
	}
	adjusted := new(big.Int).Mul(collateralValueUSD, big.NewInt(liquidationThreshold))
	adjusted.Quo(adjusted, big.NewInt(liquidationPrecision))
	adjusted.Mul(adjusted, precision)
	return adjusted.Quo(adjusted, debt)
}

// assertHealthy is the single solvency enforcement point: it fails with a
// BreaksHealthFactorError when the account's health factor is below minimum.
// Invoked as the last ledger-affecting step of every operation that can
// reduce collateral or increase debt.
func (e *Engine) assertHealthy(addr crypto.Address) error {
	hf, err := e.HealthFactor(addr)
	if err != nil {
		return err
	}
	if hf.Cmp(minHealthFactor) < 0 {
		return &BreaksHealthFactorError{HealthFactor: hf}
	}
	return nil
}
