package bundle

const (
	MinTxCount = 1
	MaxTxCount = 3
)

// Validate enforces the structural invariants an eth_sendBundle payload
// must satisfy before admission (spec §4.1):
//
//   - I4: between 1 and 3 transactions, with a combined gas limit no
//     greater than MaxGas.
//   - I3: revertingTxHashes is exactly the set of the bundle's own
//     transaction hashes — this deployment does not support partial
//     revert protection, unlike the flashbots bundle format these RPC
//     shapes are borrowed from.
//   - every transaction's chain id, where present, matches chainID.
//   - droppingTxHashes / refundPercent / refundRecipient are not
//     supported by this deployment and must be left unset.
func Validate(b *Bundle, chainID uint64, hasUnsupportedFields bool) error {
	if len(b.Txs) < MinTxCount || len(b.Txs) > MaxTxCount {
		return ErrTooManyTransactions
	}
	if b.TotalGas() > MaxGas {
		return ErrGasLimitExceeded
	}
	if hasUnsupportedFields {
		return ErrUnsupportedFieldSet
	}
	if !revertingHashesMatchTxs(b) {
		return ErrRevertingHashesMismatch
	}
	for _, tx := range b.Txs {
		if tx.ChainID != 0 && tx.ChainID != chainID {
			return ErrWrongChainID
		}
	}
	return nil
}

func revertingHashesMatchTxs(b *Bundle) bool {
	if b.RevertingTxHashes == nil || b.RevertingTxHashes.Size() != len(b.Txs) {
		return false
	}
	for _, tx := range b.Txs {
		if !b.RevertingTxHashes.Contains(tx.Hash) {
			return false
		}
	}
	return true
}
