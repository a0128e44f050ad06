package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// GenerateID generates a random hex ID
func GenerateID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// IsValidEthereumAddress checks if a string is a valid Ethereum address
func IsValidEthereumAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress normalizes an EVM address to lowercase with 0x prefix.
// Non-EVM addresses (base58 Solana keys) pass through unchanged.
func NormalizeAddress(address string) string {
	if !strings.HasPrefix(address, "0x") {
		return address
	}
	return strings.ToLower(address)
}

// CreateEventID derives the canonical dedup key for an on-chain movement.
// The same (chain, signature, index) triple always hashes to the same ID,
// no matter how many overlapping poll windows re-observe it.
func CreateEventID(chain, txSignature string, logIndex uint) string {
	data := fmt.Sprintf("%s-%s-%d", chain, txSignature, logIndex)
	hash := crypto.Keccak256Hash([]byte(data))
	return hash.Hex()
}
