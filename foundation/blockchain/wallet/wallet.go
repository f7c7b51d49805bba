// Package wallet provides keypair generation, address derivation and the
// persisted set of wallets owned by a user.
package wallet

import (
	"bytes"
	"crypto/ecdsa"
	"errors"

	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// Version is the address version byte.
const Version = byte(0x00)

// addressLength is the decoded size of an address.
const addressLength = 1 + signature.PubKeyHashLength + signature.ChecksumLength

// Set of errors returned by the wallet package.
var (
	ErrInvalidAddress  = errors.New("invalid address")
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
)

// =============================================================================

// Wallet represents a keypair able to own and spend outputs.
type Wallet struct {
	PrivateKey *ecdsa.PrivateKey
	PublicKey  []byte
	Mnemonic   string
}

// New generates a wallet from a random private key.
func New() (Wallet, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return Wallet{}, err
	}

	return FromPrivateKey(privateKey), nil
}

// FromPrivateKey constructs the wallet for an existing private key.
func FromPrivateKey(privateKey *ecdsa.PrivateKey) Wallet {
	return Wallet{
		PrivateKey: privateKey,
		PublicKey:  signature.PublicKeyBytes(&privateKey.PublicKey),
	}
}

// GenerateMnemonic returns a new 24 word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}

	return bip39.NewMnemonic(entropy)
}

// NewFromMnemonic derives a wallet from a BIP-39 mnemonic and optional
// passphrase. The first 32 bytes of the seed are used as the private key.
func NewFromMnemonic(mnemonic string, passphrase string) (Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return Wallet{}, ErrInvalidMnemonic
	}

	seed := bip39.NewSeed(mnemonic, passphrase)

	privateKey, err := crypto.ToECDSA(seed[:32])
	if err != nil {
		return Wallet{}, err
	}

	w := FromPrivateKey(privateKey)
	w.Mnemonic = mnemonic

	return w, nil
}

// PubKeyHash returns the locking hash for this wallet.
func (w Wallet) PubKeyHash() []byte {
	return signature.HashPubKey(w.PublicKey)
}

// Address returns the base58 address for this wallet.
func (w Wallet) Address() string {
	return Address(w.PubKeyHash())
}

// =============================================================================

// Address encodes a locking hash as version || pubKeyHash || checksum in
// base58.
func Address(pubKeyHash []byte) string {
	payload := make([]byte, 0, addressLength)
	payload = append(payload, Version)
	payload = append(payload, pubKeyHash...)
	payload = append(payload, signature.Checksum(payload)...)

	return signature.Base58Encode(payload)
}

// ValidateAddress reports if the address decodes to the right length,
// version and checksum.
func ValidateAddress(address string) bool {
	_, err := PubKeyHashFromAddress(address)
	return err == nil
}

// PubKeyHashFromAddress decodes an address and strips the version byte and
// checksum, returning the locking hash.
func PubKeyHashFromAddress(address string) ([]byte, error) {
	data, err := signature.Base58Decode(address)
	if err != nil {
		return nil, ErrInvalidAddress
	}

	if len(data) != addressLength || data[0] != Version {
		return nil, ErrInvalidAddress
	}

	if !signature.ValidChecksum(data) {
		return nil, ErrInvalidAddress
	}

	return bytes.Clone(data[1 : 1+signature.PubKeyHashLength]), nil
}
