package borrow

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"musd/crypto"
	"musd/storage"
)

func TestStorePositionRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	addr := crypto.MustModuleAddress("store-test-account")

	missing, err := store.GetPosition(addr)
	require.NoError(t, err)
	require.Nil(t, missing)

	pos := &Position{
		Address:     addr,
		Principal:   big.NewInt(1_234_567),
		Interest:    big.NewInt(89),
		LastAccrual: 1_700_000_000,
	}
	require.NoError(t, store.PutPosition(pos))

	loaded, err := store.GetPosition(addr)
	require.NoError(t, err)
	require.Equal(t, pos.Principal, loaded.Principal)
	require.Equal(t, pos.Interest, loaded.Interest)
	require.Equal(t, pos.LastAccrual, loaded.LastAccrual)
	require.True(t, pos.Address.Equal(loaded.Address))

	require.NoError(t, store.DeletePosition(addr))
	deleted, err := store.GetPosition(addr)
	require.NoError(t, err)
	require.Nil(t, deleted)
}

func TestStoreGlobalRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())

	missing, err := store.GetGlobal()
	require.NoError(t, err)
	require.Nil(t, missing)

	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	global := &GlobalLedger{
		TotalDebt:   huge,
		Reserves:    big.NewInt(42),
		LastAccrual: 1_700_000_000,
	}
	require.NoError(t, store.PutGlobal(global))

	loaded, err := store.GetGlobal()
	require.NoError(t, err)
	require.Equal(t, global.TotalDebt, loaded.TotalDebt)
	require.Equal(t, global.Reserves, loaded.Reserves)
	require.Equal(t, global.LastAccrual, loaded.LastAccrual)
}
