// Package tipstypes holds the shared identifiers and codecs used
// across the ingress, bundle store, audit, and UserOp bundler
// components: hashes, addresses, and the small generic Set used for
// the bundle_ids index. It re-exports go-ethereum's own types rather
// than reimplementing 32-byte/20-byte arithmetic.
package tipstypes

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type (
	Hash    = common.Hash
	Address = common.Address
)

// Keccak256 hashes the concatenation of data the same way
// crypto.Keccak256Hash does; it exists so callers in this module name
// the operation as a domain concept (bundle_hash, userOpHash) instead
// of reaching into go-ethereum directly at every call site.
func Keccak256(data ...[]byte) Hash {
	return crypto.Keccak256Hash(data...)
}

func HexToHash(s string) Hash {
	return common.HexToHash(s)
}

func HexToAddress(s string) Address {
	return common.HexToAddress(s)
}
