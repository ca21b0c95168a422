package token

import (
	"errors"
	"math/big"
	"testing"

	"synthd/crypto"
)

func makeAddress(prefix crypto.AddressPrefix, suffix byte) crypto.Address {
	var raw [20]byte
	raw[19] = suffix
	return crypto.MustNewAddress(prefix, raw[:])
}

func TestBankTransferMovesFunds(t *testing.T) {
	bank := NewBank()
	alice := makeAddress(crypto.AccountPrefix, 0x01)
	bob := makeAddress(crypto.AccountPrefix, 0x02)

	if err := bank.Credit("weth", alice, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	binding := bank.Bind("weth", alice)
	if err := binding.Transfer(bob, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := bank.BalanceOf("weth", alice); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("unexpected alice balance: %s", got)
	}
	if got := bank.BalanceOf("weth", bob); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected bob balance: %s", got)
	}
}

func TestBankTransferRejectsOverdraft(t *testing.T) {
	bank := NewBank()
	alice := makeAddress(crypto.AccountPrefix, 0x01)
	bob := makeAddress(crypto.AccountPrefix, 0x02)

	binding := bank.Bind("weth", alice)
	if err := binding.Transfer(bob, big.NewInt(1)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestIssuerMintAndBurnTrackSupply(t *testing.T) {
	bank := NewBank()
	custody := makeAddress(crypto.ModulePrefix, 0x01)
	alice := makeAddress(crypto.AccountPrefix, 0x02)

	issuer := bank.BindIssuer("susd", custody)
	if err := issuer.Mint(alice, big.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := bank.Supply("susd"); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected supply: %s", got)
	}

	if err := issuer.TransferFrom(alice, custody, big.NewInt(200)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if err := issuer.Burn(big.NewInt(200)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := bank.Supply("susd"); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("unexpected supply after burn: %s", got)
	}
	if got := bank.BalanceOf("susd", custody); got.Sign() != 0 {
		t.Fatalf("expected empty custody balance, got %s", got)
	}
}

func TestBankDiscardCommitsJournal(t *testing.T) {
	bank := NewBank()
	alice := makeAddress(crypto.AccountPrefix, 0x01)
	bob := makeAddress(crypto.AccountPrefix, 0x02)

	if err := bank.Credit("weth", alice, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	snap := bank.Snapshot()
	binding := bank.Bind("weth", alice)
	if err := binding.Transfer(bob, big.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	bank.DiscardSnapshots(snap)

	// The snapshot is gone; a late revert must not undo the committed
	// transfer.
	bank.RevertToSnapshot(snap)
	if got := bank.BalanceOf("weth", bob); got.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("committed transfer undone: %s", got)
	}
}

func TestBankRevertRestoresBalancesAndSupply(t *testing.T) {
	bank := NewBank()
	custody := makeAddress(crypto.ModulePrefix, 0x01)
	alice := makeAddress(crypto.AccountPrefix, 0x02)
	bob := makeAddress(crypto.AccountPrefix, 0x03)

	if err := bank.Credit("weth", alice, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	snap := bank.Snapshot()

	binding := bank.Bind("weth", alice)
	if err := binding.Transfer(bob, big.NewInt(70)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	issuer := bank.BindIssuer("susd", custody)
	if err := issuer.Mint(alice, big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	bank.RevertToSnapshot(snap)

	if got := bank.BalanceOf("weth", alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("alice balance not restored: %s", got)
	}
	if got := bank.BalanceOf("weth", bob); got.Sign() != 0 {
		t.Fatalf("bob balance not restored: %s", got)
	}
	if got := bank.Supply("susd"); got.Sign() != 0 {
		t.Fatalf("supply not restored: %s", got)
	}
	if got := bank.BalanceOf("susd", alice); got.Sign() != 0 {
		t.Fatalf("minted balance not restored: %s", got)
	}
}
