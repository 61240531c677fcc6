package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"musd/crypto"
	"musd/storage"
)

const (
	balancePrefix = "token/bal/"
	supplyKey     = "token/supply"
)

// Store persists token balances and supply in a key-value database. Amounts
// travel as RLP-wrapped decimal strings.
type Store struct {
	db storage.Database
}

func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func balanceKey(addr crypto.Address) []byte {
	return append([]byte(balancePrefix), addr.Bytes()...)
}

func (s *Store) GetBalance(addr crypto.Address) (*big.Int, error) {
	return s.readAmount(balanceKey(addr))
}

func (s *Store) PutBalance(addr crypto.Address, balance *big.Int) error {
	return s.writeAmount(balanceKey(addr), balance)
}

func (s *Store) GetSupply() (*big.Int, error) {
	return s.readAmount([]byte(supplyKey))
}

func (s *Store) PutSupply(supply *big.Int) error {
	return s.writeAmount([]byte(supplyKey), supply)
}

func (s *Store) readAmount(key []byte) (*big.Int, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var encoded string
	if err := rlp.DecodeBytes(raw, &encoded); err != nil {
		return nil, fmt.Errorf("token: decode amount: %w", err)
	}
	amount, ok := new(big.Int).SetString(encoded, 10)
	if !ok {
		return nil, fmt.Errorf("token: invalid stored amount %q", encoded)
	}
	return amount, nil
}

func (s *Store) writeAmount(key []byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	raw, err := rlp.EncodeToBytes(amount.String())
	if err != nil {
		return fmt.Errorf("token: encode amount: %w", err)
	}
	return s.db.Put(key, raw)
}
