package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func openTestDB(t *testing.T, path string) *DBStore {
	t.Helper()
	store, err := OpenDBStore(path, time.Second)
	require.NoError(t, err)
	return store
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"db": func(t *testing.T) Store {
			store := openTestDB(t, filepath.Join(t.TempDir(), "state.db"))
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)

			value, err := store.Get("missing")
			require.NoError(t, err)
			require.Nil(t, value)

			require.NoError(t, store.Put(KeyNetwork, []byte(`"testnet"`)))
			value, err = store.Get(KeyNetwork)
			require.NoError(t, err)
			require.Equal(t, `"testnet"`, string(value))

			// Returned values are copies.
			value[0] = 'x'
			value, err = store.Get(KeyNetwork)
			require.NoError(t, err)
			require.Equal(t, `"testnet"`, string(value))

			require.NoError(t, store.Put(KeyNetwork, []byte(`"mainnet"`)))
			value, err = store.Get(KeyNetwork)
			require.NoError(t, err)
			require.Equal(t, `"mainnet"`, string(value))

			var got record
			found, err := GetJSON(store, KeyAccounts, &got)
			require.NoError(t, err)
			require.False(t, found)

			want := record{Name: "set", Items: []string{"a", "b"}}
			require.NoError(t, PutJSON(store, KeyAccounts, want))
			found, err = GetJSON(store, KeyAccounts, &got)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, want, got)

			require.NoError(t, store.Put("broken", []byte("{")))
			_, err = GetJSON(store, "broken", &got)
			require.Error(t, err)
		})
	}
}

func TestDBStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	store := openTestDB(t, path)
	require.NoError(t, PutJSON(store, KeyNetwork, "testnet"))
	require.NoError(t, store.Close())

	store = openTestDB(t, path)
	defer store.Close()

	var network string
	found, err := GetJSON(store, KeyNetwork, &network)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "testnet", network)
}
