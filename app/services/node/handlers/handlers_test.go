package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/ledger/app/services/node/handlers"
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/leveldb"
	"github.com/ardanlabs/ledger/foundation/blockchain/wallet"
	"github.com/ardanlabs/ledger/foundation/events"
	"github.com/ardanlabs/ledger/foundation/nameservice"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_PublicAPI(t *testing.T) {
	t.Log("Given the need to serve the ledger over the public api.")
	{
		a, b := newWallet(t), newWallet(t)
		st := newState(t, a.Address())

		accounts := t.TempDir()
		if err := crypto.SaveECDSA(filepath.Join(accounts, "kennedy.ecdsa"), a.PrivateKey); err != nil {
			t.Fatalf("Should be able to save the account key: %v", err)
		}

		ns, err := nameservice.New(accounts)
		if err != nil {
			t.Fatalf("Should be able to construct the name service: %v", err)
		}

		mux := handlers.PublicMux(handlers.MuxConfig{
			Shutdown: make(chan os.Signal, 1),
			Log:      zap.NewNop().Sugar(),
			State:    st,
			NS:       ns,
			Evts:     events.New(),
		})

		testID := 0
		t.Logf("\tTest %d:\tWhen querying the genesis balance.", testID)
		{
			w := do(mux, http.MethodGet, "/v1/balance/"+a.Address(), nil)
			if w.Code != http.StatusOK {
				t.Fatalf("\t%s\tTest %d:\tShould receive a status code of 200, got %d.", failed, testID, w.Code)
			}

			var resp struct {
				Name    string `json:"name"`
				Balance int64  `json:"balance"`
			}
			json.NewDecoder(w.Body).Decode(&resp)
			if resp.Balance != 10 {
				t.Fatalf("\t%s\tTest %d:\tShould have a balance of 10, got %d.", failed, testID, resp.Balance)
			}
			t.Logf("\t%s\tTest %d:\tShould have a balance of 10.", success, testID)

			if resp.Name != "kennedy" {
				t.Fatalf("\t%s\tTest %d:\tShould resolve the account name, got %q.", failed, testID, resp.Name)
			}
			t.Logf("\t%s\tTest %d:\tShould resolve the account name.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen querying a malformed address.", testID)
		{
			w := do(mux, http.MethodGet, "/v1/balance/not-an-address", nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest %d:\tShould receive a status code of 400, got %d.", failed, testID, w.Code)
			}
			t.Logf("\t%s\tTest %d:\tShould receive a status code of 400.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a wallet builds a spend from the served outputs.", testID)
		{
			w := do(mux, http.MethodGet, "/v1/utxo/"+a.Address(), nil)
			if w.Code != http.StatusOK {
				t.Fatalf("\t%s\tTest %d:\tShould receive a status code of 200, got %d.", failed, testID, w.Code)
			}

			var unspent database.UnspentList
			if err := json.NewDecoder(w.Body).Decode(&unspent); err != nil || len(unspent) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould decode one unspent output, got %d: %v", failed, testID, len(unspent), err)
			}
			t.Logf("\t%s\tTest %d:\tShould decode one unspent output.", success, testID)

			tx, err := database.NewSpend(a, b.Address(), 4, unspent)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build the spend: %v", failed, testID, err)
			}

			body, err := json.Marshal(tx)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to marshal the spend: %v", failed, testID, err)
			}

			w = do(mux, http.MethodPost, "/v1/tx/submit", body)
			if w.Code != http.StatusOK {
				t.Fatalf("\t%s\tTest %d:\tShould accept the spend, got %d: %s", failed, testID, w.Code, w.Body)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the spend.", success, testID)

			w = do(mux, http.MethodPost, "/v1/tx/submit", body)
			if w.Code != http.StatusOK {
				t.Fatalf("\t%s\tTest %d:\tShould accept a resubmitted spend, got %d.", failed, testID, w.Code)
			}

			w = do(mux, http.MethodGet, "/v1/tx/uncommitted/list", nil)
			var pending []struct {
				ID string `json:"id"`
			}
			json.NewDecoder(w.Body).Decode(&pending)
			if len(pending) != 1 || pending[0].ID != tx.IDHex() {
				t.Fatalf("\t%s\tTest %d:\tShould list the pending spend: %v", failed, testID, pending)
			}
			t.Logf("\t%s\tTest %d:\tShould list the pending spend.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen submitting a tampered spend.", testID)
		{
			w := do(mux, http.MethodPost, "/v1/tx/submit", []byte(`{"id":"0x00","inputs":[],"outputs":[]}`))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest %d:\tShould receive a status code of 400, got %d.", failed, testID, w.Code)
			}
			t.Logf("\t%s\tTest %d:\tShould receive a status code of 400.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen listing and fetching blocks.", testID)
		{
			w := do(mux, http.MethodGet, "/v1/blocks/list", nil)
			var blocks []struct {
				Hash   string `json:"hash"`
				Height int64  `json:"height"`
			}
			json.NewDecoder(w.Body).Decode(&blocks)
			if len(blocks) != 1 || blocks[0].Height != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould list the genesis block: %v", failed, testID, blocks)
			}
			t.Logf("\t%s\tTest %d:\tShould list the genesis block.", success, testID)

			w = do(mux, http.MethodGet, "/v1/blocks/"+blocks[0].Hash, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("\t%s\tTest %d:\tShould fetch the genesis block, got %d.", failed, testID, w.Code)
			}
			t.Logf("\t%s\tTest %d:\tShould fetch the genesis block.", success, testID)

			w = do(mux, http.MethodGet, "/v1/blocks/"+strings.Repeat("ab", 32), nil)
			if w.Code != http.StatusNotFound {
				t.Fatalf("\t%s\tTest %d:\tShould receive a status code of 404, got %d.", failed, testID, w.Code)
			}
			t.Logf("\t%s\tTest %d:\tShould receive a status code of 404 for an unknown block.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen asking for the merkle proof of a transaction.", testID)
		{
			w := do(mux, http.MethodGet, "/v1/blocks/list", nil)
			var blocks []struct {
				Hash         string `json:"hash"`
				Transactions []struct {
					ID string `json:"id"`
				} `json:"transactions"`
			}
			json.NewDecoder(w.Body).Decode(&blocks)
			if len(blocks) != 1 || len(blocks[0].Transactions) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould list the genesis block: %v", failed, testID, blocks)
			}

			hash, txID := blocks[0].Hash, blocks[0].Transactions[0].ID

			w = do(mux, http.MethodGet, "/v1/blocks/"+hash+"/proof/"+txID, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("\t%s\tTest %d:\tShould receive a status code of 200, got %d.", failed, testID, w.Code)
			}

			var proof database.MerkleProof
			if err := json.NewDecoder(w.Body).Decode(&proof); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to decode the proof: %v", failed, testID, err)
			}

			if err := proof.Verify(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould verify the proof: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould verify the proof.", success, testID)

			w = do(mux, http.MethodGet, "/v1/blocks/"+hash+"/proof/"+strings.Repeat("cd", 32), nil)
			if w.Code != http.StatusNotFound {
				t.Fatalf("\t%s\tTest %d:\tShould receive a status code of 404, got %d.", failed, testID, w.Code)
			}
			t.Logf("\t%s\tTest %d:\tShould receive a status code of 404 for a transaction not in the block.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen signalling mining on a node that does not mine.", testID)
		{
			w := do(mux, http.MethodPost, "/v1/mining/signal", nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest %d:\tShould receive a status code of 400, got %d.", failed, testID, w.Code)
			}
			t.Logf("\t%s\tTest %d:\tShould receive a status code of 400.", success, testID)
		}
	}
}

// =============================================================================

func do(mux http.Handler, method string, path string, body []byte) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	return w
}

func newWallet(t *testing.T) wallet.Wallet {
	w, err := wallet.New()
	if err != nil {
		t.Fatalf("Should be able to create a wallet: %v", err)
	}

	return w
}

func newState(t *testing.T, address string) *state.State {
	g := genesis.Genesis{
		Date:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		TransPerBlock: 10,
		Difficulty:    8,
		Subsidy:       10,
		Address:       address,
		CoinbaseData:  "handlers genesis",
	}

	store, err := leveldb.NewMemory()
	if err != nil {
		t.Fatalf("Should be able to open the store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	chain, err := database.Open(database.Config{Store: store, Genesis: g})
	if err != nil {
		t.Fatalf("Should be able to open the blockchain: %v", err)
	}

	st, err := state.New(state.Config{
		Host:       "node1:3000",
		Blockchain: chain,
	})
	if err != nil {
		t.Fatalf("Should be able to create the node state: %v", err)
	}

	return st
}
