package storage_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ardanlabs/ledger/foundation/blockchain/storage"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/engine"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_Engines(t *testing.T) {
	type table struct {
		name   string
		engine string
	}

	tt := []table{
		{name: "badger", engine: engine.Badger},
		{name: "leveldb", engine: engine.LevelDB},
		{name: "memory", engine: engine.Memory},
	}

	t.Log("Given the need to persist ordered keys through any engine.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				store, err := engine.Open(engine.Config{Engine: tst.engine, Path: t.TempDir()})
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to open the engine: %s", failed, testID, err)
				}
				defer store.Close()
				t.Logf("\t%s\tTest %d:\tShould be able to open the engine.", success, testID)

				testCommit(t, testID, store)
				testRollback(t, testID, store)
				testIterate(t, testID, store)
			}

			t.Run(tst.name, f)
		}
	}
}

func testCommit(t *testing.T, testID int, store storage.Store) {
	err := store.Update(func(txn storage.Txn) error {
		if err := txn.Set([]byte("tip"), []byte("abc")); err != nil {
			return err
		}

		// Writes must be visible inside the same transaction.
		v, err := txn.Get([]byte("tip"))
		if err != nil {
			return err
		}
		if string(v) != "abc" {
			return fmt.Errorf("got %q inside the transaction", v)
		}

		return nil
	})
	if err != nil {
		t.Fatalf("\t%s\tTest %d:\tShould be able to commit a write: %s", failed, testID, err)
	}
	t.Logf("\t%s\tTest %d:\tShould be able to commit a write.", success, testID)

	var got []byte
	err = store.View(func(txn storage.Txn) error {
		var err error
		got, err = txn.Get([]byte("tip"))
		return err
	})
	if err != nil || string(got) != "abc" {
		t.Fatalf("\t%s\tTest %d:\tShould read back the committed value: %q %v", failed, testID, got, err)
	}
	t.Logf("\t%s\tTest %d:\tShould read back the committed value.", success, testID)

	err = store.View(func(txn storage.Txn) error {
		_, err := txn.Get([]byte("missing"))
		return err
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("\t%s\tTest %d:\tShould get ErrNotFound for a missing key: %v", failed, testID, err)
	}
	t.Logf("\t%s\tTest %d:\tShould get ErrNotFound for a missing key.", success, testID)
}

func testRollback(t *testing.T, testID int, store storage.Store) {
	boom := errors.New("boom")

	err := store.Update(func(txn storage.Txn) error {
		if err := txn.Set([]byte("tip"), []byte("xyz")); err != nil {
			return err
		}
		if err := txn.Set([]byte("block-xyz"), []byte("{}")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("\t%s\tTest %d:\tShould get back the function error: %v", failed, testID, err)
	}
	t.Logf("\t%s\tTest %d:\tShould get back the function error.", success, testID)

	err = store.View(func(txn storage.Txn) error {
		v, err := txn.Get([]byte("tip"))
		if err != nil {
			return err
		}
		if string(v) != "abc" {
			return fmt.Errorf("tip changed to %q", v)
		}

		if _, err := txn.Get([]byte("block-xyz")); !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("block write survived: %v", err)
		}

		return nil
	})
	if err != nil {
		t.Fatalf("\t%s\tTest %d:\tShould roll back every write of a failed update: %s", failed, testID, err)
	}
	t.Logf("\t%s\tTest %d:\tShould roll back every write of a failed update.", success, testID)
}

func testIterate(t *testing.T, testID int, store storage.Store) {
	err := store.Update(func(txn storage.Txn) error {
		for _, k := range []string{"utxo-c", "utxo-a", "utxo-b", "block-a", "wallet-a"} {
			if err := txn.Set([]byte(k), []byte(k)); err != nil {
				return err
			}
		}
		return txn.Delete([]byte("utxo-b"))
	})
	if err != nil {
		t.Fatalf("\t%s\tTest %d:\tShould be able to write keys: %s", failed, testID, err)
	}

	var keys []string
	err = store.View(func(txn storage.Txn) error {
		return txn.Iterate([]byte("utxo-"), func(key []byte, value []byte) error {
			if string(key) != string(value) {
				return fmt.Errorf("key %q has value %q", key, value)
			}
			keys = append(keys, string(key))
			return nil
		})
	})
	if err != nil {
		t.Fatalf("\t%s\tTest %d:\tShould be able to iterate: %s", failed, testID, err)
	}

	exp := []string{"utxo-a", "utxo-c"}
	if fmt.Sprint(keys) != fmt.Sprint(exp) {
		t.Logf("\t\tTest %d:\tgot: %v", testID, keys)
		t.Logf("\t\tTest %d:\texp: %v", testID, exp)
		t.Fatalf("\t%s\tTest %d:\tShould iterate only the prefix in key order.", failed, testID)
	}
	t.Logf("\t%s\tTest %d:\tShould iterate only the prefix in key order.", success, testID)
}

func Test_IOError(t *testing.T) {
	inner := errors.New("disk gone")
	err := fmt.Errorf("append block: %w", storage.NewIOError("commit", inner))

	if !storage.IsIOError(err) {
		t.Fatalf("Should detect a wrapped IOError.")
	}

	if !errors.Is(err, inner) {
		t.Fatalf("Should unwrap to the engine error.")
	}

	if storage.IsIOError(storage.ErrNotFound) {
		t.Fatalf("Should not treat ErrNotFound as an IOError.")
	}
}
