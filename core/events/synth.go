package events

import (
	"math/big"

	"synthd/crypto"
)

const (
	// TypeCollateralDeposited is emitted when collateral enters engine custody.
	TypeCollateralDeposited = "synth.collateral.deposited"
	// TypeCollateralRedeemed is emitted when collateral leaves engine custody.
	TypeCollateralRedeemed = "synth.collateral.redeemed"
	// TypeDebtMinted is emitted when new synthetic units are issued.
	TypeDebtMinted = "synth.debt.minted"
	// TypeDebtBurned is emitted when synthetic units are retired.
	TypeDebtBurned = "synth.debt.burned"
	// TypeLiquidated is emitted when a third party seizes an unhealthy position.
	TypeLiquidated = "synth.liquidated"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type CollateralDeposited struct {
	User   crypto.Address
	Asset  string
	Amount *big.Int
}

func (CollateralDeposited) EventType() string { return TypeCollateralDeposited }

func (e CollateralDeposited) Attributes() map[string]string {
	return map[string]string{
		"user":   e.User.String(),
		"asset":  e.Asset,
		"amount": amountString(e.Amount),
	}
}

type CollateralRedeemed struct {
	From   crypto.Address
	To     crypto.Address
	Asset  string
	Amount *big.Int
}

func (CollateralRedeemed) EventType() string { return TypeCollateralRedeemed }

func (e CollateralRedeemed) Attributes() map[string]string {
	return map[string]string{
		"from":   e.From.String(),
		"to":     e.To.String(),
		"asset":  e.Asset,
		"amount": amountString(e.Amount),
	}
}

type DebtMinted struct {
	User   crypto.Address
	Amount *big.Int
}

func (DebtMinted) EventType() string { return TypeDebtMinted }

func (e DebtMinted) Attributes() map[string]string {
	return map[string]string{
		"user":   e.User.String(),
		"amount": amountString(e.Amount),
	}
}

type DebtBurned struct {
	// OnBehalfOf is the account whose debt is reduced; Payer funds the burn.
	// The two differ during liquidations.
	OnBehalfOf crypto.Address
	Payer      crypto.Address
	Amount     *big.Int
}

func (DebtBurned) EventType() string { return TypeDebtBurned }

func (e DebtBurned) Attributes() map[string]string {
	return map[string]string{
		"onBehalfOf": e.OnBehalfOf.String(),
		"payer":      e.Payer.String(),
		"amount":     amountString(e.Amount),
	}
}

type Liquidated struct {
	Liquidator       crypto.Address
	User             crypto.Address
	Asset            string
	DebtCovered      *big.Int
	CollateralSeized *big.Int
}

func (Liquidated) EventType() string { return TypeLiquidated }

func (e Liquidated) Attributes() map[string]string {
	return map[string]string{
		"liquidator":       e.Liquidator.String(),
		"user":             e.User.String(),
		"asset":            e.Asset,
		"debtCovered":      amountString(e.DebtCovered),
		"collateralSeized": amountString(e.CollateralSeized),
	}
}
