package useropbundler

import (
	"encoding/hex"
	"encoding/json"
	"math/big"

	"github.com/base/tips/internal/tipstypes"
)

// wireUserOp mirrors both wire shapes at once; v0.7 fields are
// pointers so their absence can be detected (spec §3's "distinguished
// by field presence at decode time").
type wireUserOp struct {
	Sender               tipstypes.Address `json:"sender"`
	Nonce                *big.Int          `json:"nonce"`
	InitCode             hexBytes          `json:"initCode"`
	CallData             hexBytes          `json:"callData"`
	CallGasLimit         *uint64           `json:"callGasLimit"`
	VerificationGasLimit *uint64           `json:"verificationGasLimit"`
	PreVerificationGas   uint64            `json:"preVerificationGas"`
	MaxFeePerGas         *big.Int          `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int          `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexBytes          `json:"paymasterAndData"`
	Signature            hexBytes          `json:"signature"`

	// v0.7-only fields; their presence signals VersionV07.
	AccountGasLimits              hexBytes          `json:"accountGasLimits"`
	GasFees                       hexBytes          `json:"gasFees"`
	Paymaster                     tipstypes.Address `json:"paymaster"`
	PaymasterVerificationGasLimit *uint64           `json:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       *uint64           `json:"paymasterPostOpGasLimit"`
	PaymasterData                 hexBytes          `json:"paymasterData"`
}

type hexBytes []byte

func (h hexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + hex.EncodeToString(h))
}

func (h *hexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

// DecodeUserOperation parses either wire version, sniffing v0.7 from
// the presence of accountGasLimits/gasFees.
func DecodeUserOperation(data []byte) (*UserOperation, error) {
	var w wireUserOp
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}

	op := &UserOperation{
		Sender:               w.Sender,
		Nonce:                w.Nonce,
		InitCode:             w.InitCode,
		CallData:             w.CallData,
		PreVerificationGas:   w.PreVerificationGas,
		MaxFeePerGas:         w.MaxFeePerGas,
		MaxPriorityFeePerGas: w.MaxPriorityFeePerGas,
		PaymasterAndData:     w.PaymasterAndData,
		Signature:            w.Signature,
	}

	if len(w.AccountGasLimits) == 32 && len(w.GasFees) == 32 {
		op.Version = VersionV07
		op.VerificationGasLimit = new(big.Int).SetBytes(w.AccountGasLimits[:16]).Uint64()
		op.CallGasLimit = new(big.Int).SetBytes(w.AccountGasLimits[16:]).Uint64()
		op.MaxPriorityFeePerGas = new(big.Int).SetBytes(w.GasFees[:16])
		op.MaxFeePerGas = new(big.Int).SetBytes(w.GasFees[16:])
		op.Paymaster = w.Paymaster
		op.PaymasterData = w.PaymasterData
		if w.PaymasterVerificationGasLimit != nil {
			op.PaymasterVerificationGasLimit = *w.PaymasterVerificationGasLimit
		}
		if w.PaymasterPostOpGasLimit != nil {
			op.PaymasterPostOpGasLimit = *w.PaymasterPostOpGasLimit
		}
		return op, nil
	}

	op.Version = VersionV06
	if w.CallGasLimit != nil {
		op.CallGasLimit = *w.CallGasLimit
	}
	if w.VerificationGasLimit != nil {
		op.VerificationGasLimit = *w.VerificationGasLimit
	}
	return op, nil
}

// PackedUserOperation is the v0.7 calldata-ready layout, grounded on
// Patrickming-bundler's PackedUserOperation.
type PackedUserOperation struct {
	Sender             tipstypes.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

// PackV07 implements §4.5's packing rules: accountGasLimits =
// verificationGasLimit || callGasLimit, gasFees =
// maxPriorityFeePerGas || maxFeePerGas, each half a big-endian
// uint128 within the bytes32 slot.
func PackV07(op *UserOperation) PackedUserOperation {
	var accountGasLimits, gasFees [32]byte

	verif := new(big.Int).SetUint64(op.VerificationGasLimit)
	call := new(big.Int).SetUint64(op.CallGasLimit)
	verif.FillBytes(accountGasLimits[:16])
	call.FillBytes(accountGasLimits[16:])

	priority := op.MaxPriorityFeePerGas
	if priority == nil {
		priority = big.NewInt(0)
	}
	maxFee := op.MaxFeePerGas
	if maxFee == nil {
		maxFee = big.NewInt(0)
	}
	priority.FillBytes(gasFees[:16])
	maxFee.FillBytes(gasFees[16:])

	paymasterAndData := packPaymasterAndData(op)

	return PackedUserOperation{
		Sender:             op.Sender,
		Nonce:              op.Nonce,
		InitCode:           op.InitCode,
		CallData:           op.CallData,
		AccountGasLimits:   accountGasLimits,
		PreVerificationGas: new(big.Int).SetUint64(op.PreVerificationGas),
		GasFees:            gasFees,
		PaymasterAndData:   paymasterAndData,
		Signature:          op.Signature,
	}
}

// packPaymasterAndData rebuilds the v0.7 paymasterAndData blob:
// paymaster (20B) || paymasterVerificationGasLimit (16B) ||
// paymasterPostOpGasLimit (16B) || paymasterData, empty when no
// paymaster is set.
func packPaymasterAndData(op *UserOperation) []byte {
	if op.Paymaster == (tipstypes.Address{}) {
		return nil
	}
	out := make([]byte, 20+16+16+len(op.PaymasterData))
	copy(out[:20], op.Paymaster[:])
	new(big.Int).SetUint64(op.PaymasterVerificationGasLimit).FillBytes(out[20:36])
	new(big.Int).SetUint64(op.PaymasterPostOpGasLimit).FillBytes(out[36:52])
	copy(out[52:], op.PaymasterData)
	return out
}
