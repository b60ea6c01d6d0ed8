package bundle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/base/tips/internal/tipstypes"
)

// Tx is a decoded transaction envelope plus the attributes derivable
// from it without re-signing (spec §3): hash, sender, nonce, chain id.
type Tx struct {
	Raw     *types.Transaction
	Hash    tipstypes.Hash
	Sender  tipstypes.Address
	Nonce   uint64
	ChainID uint64
	Gas     uint64
}

// DecodeTx decodes a signed transaction envelope and derives its
// attributes via the given signer, grounded on
// flashbots-op-geth/internal/ethapi/bundle_api.go's
// tx.UnmarshalBinary + types.Sender pattern.
func DecodeTx(raw []byte, signer types.Signer) (Tx, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return Tx{}, fmt.Errorf("%w: %v", ErrDecoding, err)
	}

	sender, err := types.Sender(signer, tx)
	if err != nil {
		return Tx{}, fmt.Errorf("%w: recover sender: %v", ErrDecoding, err)
	}

	var chainID uint64
	if tx.ChainId() != nil {
		chainID = tx.ChainId().Uint64()
	}

	return Tx{
		Raw:     tx,
		Hash:    tx.Hash(),
		Sender:  sender,
		Nonce:   tx.Nonce(),
		ChainID: chainID,
		Gas:     tx.Gas(),
	}, nil
}
