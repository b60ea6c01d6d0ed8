package bundle

import (
	"encoding/hex"
	"encoding/json"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/base/tips/internal/tipstypes"
)

// bundleJSON mirrors the eth_sendBundle wire shape (spec §3) for the
// fields the RPC and audit layers need to serialize; Tx.Raw round-trips
// through its RLP hex encoding rather than a JSON-per-field breakdown,
// matching how flashbots-op-geth's SendBundleArgs carries txs.
type bundleJSON struct {
	UUID              uuid.UUID        `json:"uuid"`
	BundleHash        tipstypes.Hash   `json:"bundleHash"`
	Txs               []string         `json:"txs"`
	BlockNumber       uint64           `json:"blockNumber,omitempty"`
	MinTimestamp      uint64           `json:"minTimestamp,omitempty"`
	MaxTimestamp      uint64           `json:"maxTimestamp,omitempty"`
	RevertingTxHashes []tipstypes.Hash `json:"revertingTxHashes,omitempty"`
	ReplacementUUID   *uuid.UUID       `json:"replacementUuid,omitempty"`
	CreatedAt         int64            `json:"createdAt"`
	UpdatedAt         int64            `json:"updatedAt"`
	State             string           `json:"state"`
}

func (b *Bundle) MarshalJSON() ([]byte, error) {
	out := bundleJSON{
		UUID:            b.UUID,
		BundleHash:      b.BundleHash,
		Txs:             make([]string, len(b.Txs)),
		BlockNumber:     b.BlockNumber,
		MinTimestamp:    b.MinTimestamp,
		MaxTimestamp:    b.MaxTimestamp,
		ReplacementUUID: b.ReplacementUUID,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
		State:           b.State.String(),
	}
	for i, tx := range b.Txs {
		raw, err := tx.Raw.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out.Txs[i] = "0x" + hex.EncodeToString(raw)
	}
	if b.RevertingTxHashes != nil {
		out.RevertingTxHashes = b.RevertingTxHashes.List()
	}
	return json.Marshal(out)
}

// FromJSON decodes a bundle encoded by MarshalJSON, recovering
// senders with the given signer (the caller knows the chain id the
// bundle was admitted under).
func FromJSON(data []byte, signer types.Signer) (*Bundle, error) {
	var in bundleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	b := &Bundle{
		UUID:            in.UUID,
		BundleHash:      in.BundleHash,
		BlockNumber:     in.BlockNumber,
		MinTimestamp:    in.MinTimestamp,
		MaxTimestamp:    in.MaxTimestamp,
		ReplacementUUID: in.ReplacementUUID,
		CreatedAt:       in.CreatedAt,
		UpdatedAt:       in.UpdatedAt,
		State:           stateFromString(in.State),
	}

	b.Txs = make([]Tx, len(in.Txs))
	for i, rawHex := range in.Txs {
		raw, err := hex.DecodeString(trim0x(rawHex))
		if err != nil {
			return nil, err
		}
		tx, err := DecodeTx(raw, signer)
		if err != nil {
			return nil, err
		}
		b.Txs[i] = tx
	}

	if len(in.RevertingTxHashes) > 0 {
		reverting := tipstypes.NewSet[tipstypes.Hash]()
		for _, h := range in.RevertingTxHashes {
			reverting.Add(h)
		}
		b.RevertingTxHashes = reverting
	}
	return b, nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func stateFromString(s string) State {
	if s == StateIncludedByBuilder.String() {
		return StateIncludedByBuilder
	}
	return StateReady
}
