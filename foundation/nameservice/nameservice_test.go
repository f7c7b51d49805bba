package nameservice_test

import (
	"path/filepath"
	"testing"

	"github.com/ardanlabs/ledger/foundation/blockchain/wallet"
	"github.com/ardanlabs/ledger/foundation/nameservice"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Lookup(t *testing.T) {
	t.Log("Given the need to name addresses from key files.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the folder holds one key file.", testID)
		{
			dir := t.TempDir()

			privateKey, err := crypto.GenerateKey()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to generate a key: %v", failed, testID, err)
			}
			if err := crypto.SaveECDSA(filepath.Join(dir, "miner1.ecdsa"), privateKey); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to save the key: %v", failed, testID, err)
			}

			ns, err := nameservice.New(dir)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to load the folder: %v", failed, testID, err)
			}

			address := wallet.FromPrivateKey(privateKey).Address()
			if got := ns.Lookup(address); got != "miner1" {
				t.Fatalf("\t%s\tTest %d:\tShould name the address miner1, got %q.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould name the address miner1.", success, testID)

			if got := ns.Lookup("unknown"); got != "unknown" {
				t.Fatalf("\t%s\tTest %d:\tShould return an unknown address as is, got %q.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould return an unknown address as is.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the folder does not exist.", testID)
		{
			ns, err := nameservice.New(filepath.Join(t.TempDir(), "missing"))
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould not fail: %v", failed, testID, err)
			}
			if len(ns.Copy()) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould be empty.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould yield an empty name service.", success, testID)
		}
	}
}
