package collateral

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"musd/crypto"
	"musd/storage"
)

type storedAssetConfig struct {
	Symbol                  string
	Enabled                 bool
	BorrowFactorBps         uint64
	LiquidationThresholdBps uint64
	LiquidationPenaltyBps   uint64
	Decimals                uint8
}

type storedAssetIndex struct {
	Symbols []string
}

const (
	assetIndexKey  = "collateral/assets"
	assetCfgPrefix = "collateral/cfg/"
	balancePrefix  = "collateral/bal/"
)

// Store persists asset configurations and deposited balances through the
// generic key-value backend, encoding records with RLP.
type Store struct {
	db storage.Database
}

func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func (s *Store) GetAssetConfig(symbol string) (*AssetConfig, error) {
	raw, err := s.db.Get([]byte(assetCfgPrefix + symbol))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedAssetConfig
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("collateral: decode asset config: %w", err)
	}
	return &AssetConfig{
		Symbol:                  stored.Symbol,
		Enabled:                 stored.Enabled,
		BorrowFactorBps:         stored.BorrowFactorBps,
		LiquidationThresholdBps: stored.LiquidationThresholdBps,
		LiquidationPenaltyBps:   stored.LiquidationPenaltyBps,
		Decimals:                stored.Decimals,
	}, nil
}

func (s *Store) PutAssetConfig(cfg *AssetConfig) error {
	if cfg == nil {
		return ErrInvalidRiskParameters
	}
	stored := storedAssetConfig{
		Symbol:                  cfg.Symbol,
		Enabled:                 cfg.Enabled,
		BorrowFactorBps:         cfg.BorrowFactorBps,
		LiquidationThresholdBps: cfg.LiquidationThresholdBps,
		LiquidationPenaltyBps:   cfg.LiquidationPenaltyBps,
		Decimals:                cfg.Decimals,
	}
	raw, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("collateral: encode asset config: %w", err)
	}
	if err := s.db.Put([]byte(assetCfgPrefix+cfg.Symbol), raw); err != nil {
		return err
	}
	return s.indexSymbol(cfg.Symbol)
}

func (s *Store) ListAssetSymbols() ([]string, error) {
	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	return index.Symbols, nil
}

func (s *Store) GetBalance(addr crypto.Address, symbol string) (*big.Int, error) {
	raw, err := s.db.Get(balanceKey(addr, symbol))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stored string
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("collateral: decode balance: %w", err)
	}
	balance, ok := new(big.Int).SetString(stored, 10)
	if !ok {
		return nil, fmt.Errorf("collateral: corrupt balance record %q", stored)
	}
	return balance, nil
}

func (s *Store) PutBalance(addr crypto.Address, symbol string, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	raw, err := rlp.EncodeToBytes(amount.String())
	if err != nil {
		return fmt.Errorf("collateral: encode balance: %w", err)
	}
	return s.db.Put(balanceKey(addr, symbol), raw)
}

func balanceKey(addr crypto.Address, symbol string) []byte {
	key := make([]byte, 0, len(balancePrefix)+len(symbol)+1+20)
	key = append(key, balancePrefix...)
	key = append(key, symbol...)
	key = append(key, '/')
	return append(key, addr.Bytes()...)
}

func (s *Store) loadIndex() (*storedAssetIndex, error) {
	raw, err := s.db.Get([]byte(assetIndexKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return &storedAssetIndex{}, nil
	}
	if err != nil {
		return nil, err
	}
	var index storedAssetIndex
	if err := rlp.DecodeBytes(raw, &index); err != nil {
		return nil, fmt.Errorf("collateral: decode asset index: %w", err)
	}
	return &index, nil
}

func (s *Store) indexSymbol(symbol string) error {
	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	for _, existing := range index.Symbols {
		if existing == symbol {
			return nil
		}
	}
	index.Symbols = append(index.Symbols, symbol)
	sort.Strings(index.Symbols)
	raw, err := rlp.EncodeToBytes(index)
	if err != nil {
		return fmt.Errorf("collateral: encode asset index: %w", err)
	}
	return s.db.Put([]byte(assetIndexKey), raw)
}
