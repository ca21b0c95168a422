package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"synthd/crypto"
	"synthd/storage"
)

func makeAddress(suffix byte) crypto.Address {
	var raw [20]byte
	raw[19] = suffix
	return crypto.MustNewAddress(crypto.AccountPrefix, raw[:])
}

func TestLedgerRoundTrip(t *testing.T) {
	ledger := NewLedger(storage.NewMemDB())
	user := makeAddress(0x01)

	require.NoError(t, ledger.SetCollateralBalance(user, "weth", big.NewInt(1_000)))
	require.NoError(t, ledger.SetDebtBalance(user, big.NewInt(400)))

	collateral, err := ledger.CollateralBalance(user, "weth")
	require.NoError(t, err)
	require.Zero(t, collateral.Cmp(big.NewInt(1_000)))

	debt, err := ledger.DebtBalance(user)
	require.NoError(t, err)
	require.Zero(t, debt.Cmp(big.NewInt(400)))
}

func TestLedgerMissingPositionsReadZero(t *testing.T) {
	ledger := NewLedger(storage.NewMemDB())
	user := makeAddress(0x02)

	collateral, err := ledger.CollateralBalance(user, "wbtc")
	require.NoError(t, err)
	require.Zero(t, collateral.Sign())

	debt, err := ledger.DebtBalance(user)
	require.NoError(t, err)
	require.Zero(t, debt.Sign())

	total, err := ledger.TotalDeposited("wbtc")
	require.NoError(t, err)
	require.Zero(t, total.Sign())
}

func TestLedgerRejectsNegativeAmount(t *testing.T) {
	ledger := NewLedger(storage.NewMemDB())
	user := makeAddress(0x03)

	require.Error(t, ledger.SetDebtBalance(user, big.NewInt(-1)))
	require.Error(t, ledger.SetCollateralBalance(user, "weth", nil))
}

func TestLedgerRevertRestoresPriorState(t *testing.T) {
	ledger := NewLedger(storage.NewMemDB())
	user := makeAddress(0x04)

	require.NoError(t, ledger.SetCollateralBalance(user, "weth", big.NewInt(500)))

	snap := ledger.Snapshot()
	require.NoError(t, ledger.SetCollateralBalance(user, "weth", big.NewInt(200)))
	require.NoError(t, ledger.SetDebtBalance(user, big.NewInt(100)))
	require.NoError(t, ledger.SetTotalDeposited("weth", big.NewInt(200)))

	ledger.RevertToSnapshot(snap)

	collateral, err := ledger.CollateralBalance(user, "weth")
	require.NoError(t, err)
	require.Zero(t, collateral.Cmp(big.NewInt(500)))

	debt, err := ledger.DebtBalance(user)
	require.NoError(t, err)
	require.Zero(t, debt.Sign())

	total, err := ledger.TotalDeposited("weth")
	require.NoError(t, err)
	require.Zero(t, total.Sign())
}

func TestLedgerDiscardReleasesJournal(t *testing.T) {
	ledger := NewLedger(storage.NewMemDB())
	user := makeAddress(0x05)

	snap := ledger.Snapshot()
	require.Equal(t, 0, snap)
	require.NoError(t, ledger.SetDebtBalance(user, big.NewInt(50)))
	ledger.DiscardSnapshots(snap)

	// A revert after commit must not touch the committed value.
	ledger.RevertToSnapshot(snap)
	debt, err := ledger.DebtBalance(user)
	require.NoError(t, err)
	require.Zero(t, debt.Cmp(big.NewInt(50)))
}

func TestLedgerZeroBalanceRemovesRecord(t *testing.T) {
	db := storage.NewMemDB()
	ledger := NewLedger(db)
	user := makeAddress(0x06)

	require.NoError(t, ledger.SetCollateralBalance(user, "weth", big.NewInt(10)))
	require.NoError(t, ledger.SetCollateralBalance(user, "weth", big.NewInt(0)))

	ok, err := db.Has([]byte("synth/collateral/synth/" + string(user.Bytes()) + "/weth"))
	require.NoError(t, err)
	require.False(t, ok)
}
