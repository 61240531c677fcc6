package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix distinguishes the human-readable prefixes used across the
// protocol. Account addresses hold user positions while module addresses
// identify protocol-owned treasuries and engines.
type AddressPrefix string

const (
	// AccountPrefix marks externally owned accounts.
	AccountPrefix AddressPrefix = "musd"
	// ModulePrefix marks protocol module treasuries (debt ledger, liquidation
	// engine, reserve collector).
	ModulePrefix AddressPrefix = "mmod"
)

// Address is a 20-byte identity rendered as bech32 with a protocol prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != 20 {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: b}
}

func (a Address) String() string {
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

func (a Address) Bytes() []byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether the address carries no identity. Both the empty
// value and an all-zero payload count as zero.
func (a Address) IsZero() bool {
	if len(a.bytes) == 0 {
		return true
	}
	for _, b := range a.bytes {
		if b != 0 {
			return false
		}
	}
	return true
}

// Equal compares the raw address payloads, ignoring the prefix.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a.bytes, other.bytes)
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// MustModuleAddress derives a deterministic module address from a label. It is
// used to mint the well-known treasuries owned by the protocol itself.
func MustModuleAddress(label string) Address {
	digest := ethcrypto.Keccak256([]byte("musd/module/" + label))
	return NewAddress(ModulePrefix, digest[len(digest)-20:])
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

func (k *PublicKey) Address() Address {
	addrBytes := ethcrypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(AccountPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
