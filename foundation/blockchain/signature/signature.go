// Package signature provides helper functions for handling the blockchain
// hashing, encoding and signature needs.
package signature

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

// ChecksumLength is the number of bytes taken from a double sha256 to
// protect an encoded payload.
const ChecksumLength = 4

// PubKeyHashLength is the size of a RIPEMD160 digest.
const PubKeyHashLength = ripemd160.Size

// ledgerStamp is mixed into every digest that gets signed. This will make it
// clear that the signature was produced for this ledger and not replayed from
// some other system using the same curve.
const ledgerStamp = "\x19Ledger Signed Message:\n32"

// Set of errors returned by the verification functions.
var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// =============================================================================

// SHA256 returns the sha256 digest of the concatenation of the data.
func SHA256(data ...[]byte) []byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}

	return h.Sum(nil)
}

// DoubleSHA256 returns sha256(sha256(data)).
func DoubleSHA256(data []byte) []byte {
	return SHA256(SHA256(data))
}

// Ripemd160 returns the RIPEMD160 digest of the data.
func Ripemd160(data []byte) []byte {
	h := ripemd160.New()
	h.Write(data)

	return h.Sum(nil)
}

// HashPubKey produces the locking hash for a public key, which is
// RIPEMD160(SHA256(publicKey)).
func HashPubKey(publicKey []byte) []byte {
	return Ripemd160(SHA256(publicKey))
}

// Checksum returns the first ChecksumLength bytes of a double sha256 over
// the payload.
func Checksum(payload []byte) []byte {
	return DoubleSHA256(payload)[:ChecksumLength]
}

// ValidChecksum reports if the trailing checksum of the data matches the
// payload in front of it.
func ValidChecksum(data []byte) bool {
	if len(data) < ChecksumLength {
		return false
	}

	payload := data[:len(data)-ChecksumLength]
	sum := data[len(data)-ChecksumLength:]

	return bytes.Equal(Checksum(payload), sum)
}

// Base58Encode encodes the data with the bitcoin alphabet.
func Base58Encode(data []byte) string {
	return base58.Encode(data)
}

// Base58Decode decodes a bitcoin alphabet string.
func Base58Decode(s string) ([]byte, error) {
	return base58.Decode(s)
}

// Hex returns a 0x prefixed hex representation of the data.
func Hex(data []byte) string {
	return hexutil.Encode(data)
}

// =============================================================================

// PublicKeyBytes returns the uncompressed 65 byte form of the public key.
func PublicKeyBytes(publicKey *ecdsa.PublicKey) []byte {
	return crypto.FromECDSAPub(publicKey)
}

// Digest returns a hash of 32 bytes that represents the value with the
// ledger stamp embedded into the final hash. This is the value that
// gets signed.
func Digest(value any) ([]byte, error) {
	v, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	// Hash the data into a 32 byte array. This will provide
	// a data length consistency with all data.
	txHash := crypto.Keccak256(v)

	return crypto.Keccak256([]byte(ledgerStamp), txHash), nil
}

// Sign uses the specified private key to sign the digest. The result is the
// 65 byte [R|S|V] form.
func Sign(digest []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return nil, err
	}

	// Check the public key extracted from the digest and signature.
	publicKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return nil, err
	}

	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), digest, rs) {
		return nil, ErrInvalidSignature
	}

	return sig, nil
}

// Verify checks the signature was produced over the digest by the private
// key belonging to the public key.
func Verify(digest []byte, sig []byte, publicKey []byte) error {
	if len(sig) != crypto.SignatureLength {
		return ErrInvalidSignature
	}

	if _, err := crypto.UnmarshalPubkey(publicKey); err != nil {
		return ErrInvalidPublicKey
	}

	// Check the recovery id is either 0 or 1.
	v := sig[crypto.RecoveryIDOffset]
	if v != 0 && v != 1 {
		return ErrInvalidSignature
	}

	if !crypto.VerifySignature(publicKey, digest, sig[:crypto.RecoveryIDOffset]) {
		return ErrInvalidSignature
	}

	return nil
}
