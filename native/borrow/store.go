package borrow

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"musd/crypto"
	"musd/storage"
)

const (
	positionPrefix = "borrow/pos/"
	globalKey      = "borrow/global"
)

// storedPosition is the persisted form of a position. Big integers travel as
// decimal strings so the encoding stays stable across value ranges.
type storedPosition struct {
	Address     []byte
	Prefix      string
	Principal   string
	Interest    string
	LastAccrual uint64
}

type storedGlobal struct {
	TotalDebt   string
	Reserves    string
	LastAccrual uint64
}

// Store persists positions and the aggregate ledger in a key-value database.
type Store struct {
	db storage.Database
}

func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func positionKey(addr crypto.Address) []byte {
	return append([]byte(positionPrefix), addr.Bytes()...)
}

func (s *Store) GetPosition(addr crypto.Address) (*Position, error) {
	raw, err := s.db.Get(positionKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedPosition
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("borrow: decode position: %w", err)
	}
	if len(stored.Address) != 20 {
		return nil, fmt.Errorf("borrow: invalid stored address length %d", len(stored.Address))
	}
	address := crypto.NewAddress(crypto.AddressPrefix(stored.Prefix), stored.Address)
	principal, err := parseAmount(stored.Principal)
	if err != nil {
		return nil, err
	}
	interest, err := parseAmount(stored.Interest)
	if err != nil {
		return nil, err
	}
	return &Position{
		Address:     address,
		Principal:   principal,
		Interest:    interest,
		LastAccrual: stored.LastAccrual,
	}, nil
}

func (s *Store) PutPosition(pos *Position) error {
	if pos == nil {
		return errors.New("borrow: nil position")
	}
	stored := storedPosition{
		Address:     pos.Address.Bytes(),
		Prefix:      string(pos.Address.Prefix()),
		Principal:   formatAmount(pos.Principal),
		Interest:    formatAmount(pos.Interest),
		LastAccrual: pos.LastAccrual,
	}
	raw, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("borrow: encode position: %w", err)
	}
	return s.db.Put(positionKey(pos.Address), raw)
}

func (s *Store) DeletePosition(addr crypto.Address) error {
	return s.db.Delete(positionKey(addr))
}

func (s *Store) GetGlobal() (*GlobalLedger, error) {
	raw, err := s.db.Get([]byte(globalKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedGlobal
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("borrow: decode global ledger: %w", err)
	}
	totalDebt, err := parseAmount(stored.TotalDebt)
	if err != nil {
		return nil, err
	}
	reserves, err := parseAmount(stored.Reserves)
	if err != nil {
		return nil, err
	}
	return &GlobalLedger{
		TotalDebt:   totalDebt,
		Reserves:    reserves,
		LastAccrual: stored.LastAccrual,
	}, nil
}

func (s *Store) PutGlobal(global *GlobalLedger) error {
	if global == nil {
		return errors.New("borrow: nil global ledger")
	}
	stored := storedGlobal{
		TotalDebt:   formatAmount(global.TotalDebt),
		Reserves:    formatAmount(global.Reserves),
		LastAccrual: global.LastAccrual,
	}
	raw, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("borrow: encode global ledger: %w", err)
	}
	return s.db.Put([]byte(globalKey), raw)
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func parseAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("borrow: invalid stored amount %q", raw)
	}
	return amount, nil
}
