package crypto

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix is the human-readable part of a bech32 account address.
type AddressPrefix string

const (
	// AccountPrefix denotes user and liquidator accounts.
	AccountPrefix AddressPrefix = "synth"
	// ModulePrefix denotes engine-owned custody accounts.
	ModulePrefix AddressPrefix = "synthm"
)

const addressLength = 20

// Address represents a 20-byte account identifier with a bech32 prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress builds an address from raw bytes. The payload must be exactly 20
// bytes long.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != addressLength {
		return Address{}, fmt.Errorf("crypto: address must be %d bytes, got %d", addressLength, len(b))
	}
	cloned := append([]byte(nil), b...)
	return Address{prefix: prefix, bytes: cloned}, nil
}

// MustNewAddress builds an address from raw bytes and panics on invalid input.
// Intended for constants and tests where the payload is known good.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

// String renders the bech32 encoding of the address.
func (a Address) String() string {
	if len(a.bytes) == 0 {
		return ""
	}
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the raw 20-byte payload. A nil slice marks the zero
// address.
func (a Address) Bytes() []byte {
	if a.bytes == nil {
		return nil
	}
	return append([]byte(nil), a.bytes...)
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether the address carries no payload.
func (a Address) IsZero() bool {
	return len(a.bytes) == 0
}

// Equal compares two addresses by prefix and payload.
func (a Address) Equal(other Address) bool {
	return a.prefix == other.prefix && bytes.Equal(a.bytes, other.bytes)
}

// DecodeAddress parses a bech32 account string back into an Address.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}
