// Package merkle computes merkle roots and inclusion proofs over a list of
// hashable values. A level with an odd number of nodes promotes its last
// node unchanged to the next level instead of duplicating it.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"hash"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) bool
}

// Set of errors returned by the tree.
var (
	ErrEmpty    = errors.New("cannot construct tree with no content")
	ErrNotFound = errors.New("data is not in the tree")
)

// =============================================================================

// Tree holds every level of hashes from the leaves to the root.
type Tree[T Hashable[T]] struct {
	MerkleRoot   []byte
	values       []T
	levels       [][][]byte
	hashStrategy func() hash.Hash
}

// WithHashStrategy replaces sha256 as the hash used to combine nodes.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a tree over the values in their given order.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	t := Tree[T]{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.Generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// Root returns only the merkle root for the set of values.
func Root[T Hashable[T]](values []T, options ...func(t *Tree[T])) ([]byte, error) {
	t, err := NewTree(values, options...)
	if err != nil {
		return nil, err
	}

	return t.MerkleRoot, nil
}

// Generate replaces the content of the tree with the specified values.
func (t *Tree[T]) Generate(values []T) error {
	levels, err := t.build(values)
	if err != nil {
		return err
	}

	t.values = append([]T(nil), values...)
	t.levels = levels
	t.MerkleRoot = levels[len(levels)-1][0]

	return nil
}

// RootHex returns the hex encoded merkle root.
func (t *Tree[T]) RootHex() string {
	return hexutil.Encode(t.MerkleRoot)
}

// Proof returns the sibling hashes from the leaf holding data up to the
// root, with the side each sibling is concatenated on: 0 means the sibling
// goes first, 1 means it goes second. A level where the node was promoted
// contributes nothing.
func (t *Tree[T]) Proof(data T) ([][]byte, []int64, error) {
	idx, err := t.index(data)
	if err != nil {
		return nil, nil, err
	}

	var proof [][]byte
	var order []int64

	for _, level := range t.levels[:len(t.levels)-1] {
		switch {
		case idx%2 == 1:
			proof = append(proof, level[idx-1])
			order = append(order, 0)
		case idx+1 < len(level):
			proof = append(proof, level[idx+1])
			order = append(order, 1)
		}
		idx /= 2
	}

	return proof, order, nil
}

// VerifyProof recomputes the root from a leaf hash and the proof returned
// by Tree.Proof and compares it with the expected root. A nil hashStrategy
// means sha256.
func VerifyProof(root []byte, leafHash []byte, proof [][]byte, order []int64, hashStrategy func() hash.Hash) (bool, error) {
	if len(proof) != len(order) {
		return false, errors.New("proof and order length mismatch")
	}

	if hashStrategy == nil {
		hashStrategy = sha256.New
	}

	sum := leafHash
	for i, p := range proof {
		var err error
		switch order[i] {
		case 0:
			sum, err = combine(hashStrategy, p, sum)
		default:
			sum, err = combine(hashStrategy, sum, p)
		}
		if err != nil {
			return false, err
		}
	}

	return bytes.Equal(sum, root), nil
}

// =============================================================================

// index locates the leaf holding data.
func (t *Tree[T]) index(data T) (int, error) {
	for i, v := range t.values {
		if v.Equals(data) {
			return i, nil
		}
	}

	return 0, ErrNotFound
}

// build hashes the values and folds the levels until one hash remains.
func (t *Tree[T]) build(values []T) ([][][]byte, error) {
	if len(values) == 0 {
		return nil, ErrEmpty
	}

	level := make([][]byte, len(values))
	for i, v := range values {
		h, err := v.Hash()
		if err != nil {
			return nil, err
		}
		level[i] = h
	}

	levels := [][][]byte{level}

	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)

		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}

			sum, err := combine(t.hashStrategy, level[i], level[i+1])
			if err != nil {
				return nil, err
			}
			next = append(next, sum)
		}

		levels = append(levels, next)
		level = next
	}

	return levels, nil
}

// combine hashes the concatenation of two child hashes.
func combine(hashStrategy func() hash.Hash, left []byte, right []byte) ([]byte, error) {
	h := hashStrategy()

	if _, err := h.Write(left); err != nil {
		return nil, err
	}
	if _, err := h.Write(right); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}
