package merkle_test

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/ardanlabs/ledger/foundation/blockchain/merkle"
)

// Data uses the sha256 hashing algorithm for the merkle tree.
type Data struct {
	x string
}

// Hash hashes the values using sha256.
func (d Data) Hash() ([]byte, error) {
	h := sha256.Sum256([]byte(d.x))
	return h[:], nil
}

// Equals tests for equality of two piece of data.
func (d Data) Equals(other Data) bool {
	return d.x == other.x
}

func sum(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func leaf(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

// =============================================================================

func Test_MerkleRoot(t *testing.T) {
	a, b, c, d, e := leaf("a"), leaf("b"), leaf("c"), leaf("d"), leaf("e")

	type table struct {
		name string
		data []Data
		exp  []byte
	}

	tt := []table{
		{
			name: "single",
			data: []Data{{"a"}},
			exp:  a,
		},
		{
			name: "pair",
			data: []Data{{"a"}, {"b"}},
			exp:  sum(a, b),
		},
		{
			name: "odd-promoted",
			data: []Data{{"a"}, {"b"}, {"c"}},
			exp:  sum(sum(a, b), c),
		},
		{
			name: "even",
			data: []Data{{"a"}, {"b"}, {"c"}, {"d"}},
			exp:  sum(sum(a, b), sum(c, d)),
		},
		{
			name: "odd-promoted-twice",
			data: []Data{{"a"}, {"b"}, {"c"}, {"d"}, {"e"}},
			exp:  sum(sum(sum(a, b), sum(c, d)), e),
		},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			tree, err := merkle.NewTree(tst.data)
			if err != nil {
				t.Fatalf("Should be able to create the tree: %s", err)
			}

			if !bytes.Equal(tree.MerkleRoot, tst.exp) {
				t.Logf("got: %x", tree.MerkleRoot)
				t.Logf("exp: %x", tst.exp)
				t.Fatalf("Should get back the right merkle root.")
			}

			root, err := merkle.Root(tst.data)
			if err != nil || !bytes.Equal(root, tst.exp) {
				t.Fatalf("Should get the same root from the helper: %v", err)
			}

			if got := tree.RootHex(); got != "0x"+hex.EncodeToString(tst.exp) {
				t.Fatalf("Should encode the root as hex, got %s", got)
			}
		}

		t.Run(tst.name, f)
	}
}

func Test_EmptyTree(t *testing.T) {
	if _, err := merkle.NewTree([]Data{}); err == nil {
		t.Fatalf("Should not be able to build a tree with no content.")
	}
}

func Test_HashStrategy(t *testing.T) {
	data := []Data{{"a"}, {"b"}}

	tree, err := merkle.NewTree(data, merkle.WithHashStrategy[Data](md5.New))
	if err != nil {
		t.Fatalf("Should be able to create the tree: %s", err)
	}

	h := md5.New()
	h.Write(leaf("a"))
	h.Write(leaf("b"))
	exp := h.Sum(nil)

	if !bytes.Equal(tree.MerkleRoot, exp) {
		t.Logf("got: %x", tree.MerkleRoot)
		t.Logf("exp: %x", exp)
		t.Fatalf("Should combine nodes with the configured hash.")
	}
}

func Test_Proof(t *testing.T) {
	data := []Data{{"a"}, {"b"}, {"c"}, {"d"}, {"e"}}

	tree, err := merkle.NewTree(data)
	if err != nil {
		t.Fatalf("Should be able to create the tree: %s", err)
	}

	for _, d := range data {
		proof, order, err := tree.Proof(d)
		if err != nil {
			t.Fatalf("Should be able to get a proof for %s: %s", d.x, err)
		}

		ok, err := merkle.VerifyProof(tree.MerkleRoot, leaf(d.x), proof, order, nil)
		if err != nil {
			t.Fatalf("Should be able to verify the proof for %s: %s", d.x, err)
		}
		if !ok {
			t.Fatalf("Should prove %s is in the tree.", d.x)
		}

		ok, err = merkle.VerifyProof(tree.MerkleRoot, leaf("z"), proof, order, nil)
		if err != nil || ok {
			t.Fatalf("Should not prove another leaf with the path for %s: %v", d.x, err)
		}
	}

	if _, _, err := tree.Proof(Data{"z"}); !errors.Is(err, merkle.ErrNotFound) {
		t.Fatalf("Should get ErrNotFound for data not in the tree: %v", err)
	}

	if _, err := merkle.VerifyProof(tree.MerkleRoot, leaf("a"), [][]byte{leaf("b")}, nil, nil); err == nil {
		t.Fatalf("Should fail when the proof and order lengths differ.")
	}
}

func Test_ProofHashStrategy(t *testing.T) {
	data := []Data{{"a"}, {"b"}, {"c"}}

	tree, err := merkle.NewTree(data, merkle.WithHashStrategy[Data](md5.New))
	if err != nil {
		t.Fatalf("Should be able to create the tree: %s", err)
	}

	proof, order, err := tree.Proof(Data{"c"})
	if err != nil {
		t.Fatalf("Should be able to get a proof: %s", err)
	}

	ok, err := merkle.VerifyProof(tree.MerkleRoot, leaf("c"), proof, order, md5.New)
	if err != nil || !ok {
		t.Fatalf("Should verify with the tree's hash: %v", err)
	}

	ok, err = merkle.VerifyProof(tree.MerkleRoot, leaf("c"), proof, order, nil)
	if err != nil || ok {
		t.Fatalf("Should not verify with a different hash: %v", err)
	}
}
