package useropbundler

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/base/tips/internal/tipstypes"
)

// handleOpsSelector is handleOps(PackedUserOperation[],address),
// selector 0x1fad948c per spec §4.5.
const handleOpsSelectorHex = "1fad948c"

// handleOpsABI is the minimal EntryPoint v0.7 ABI fragment needed to
// encode handleOps calldata, via go-ethereum/accounts/abi (already a
// transitive dependency of go-ethereum).
const handleOpsABI = `[{
	"name": "handleOps",
	"type": "function",
	"inputs": [
		{
			"name": "ops",
			"type": "tuple[]",
			"components": [
				{"name": "sender", "type": "address"},
				{"name": "nonce", "type": "uint256"},
				{"name": "initCode", "type": "bytes"},
				{"name": "callData", "type": "bytes"},
				{"name": "accountGasLimits", "type": "bytes32"},
				{"name": "preVerificationGas", "type": "uint256"},
				{"name": "gasFees", "type": "bytes32"},
				{"name": "paymasterAndData", "type": "bytes"},
				{"name": "signature", "type": "bytes"}
			]
		},
		{"name": "beneficiary", "type": "address"}
	]
}]`

var handleOpsMethod abi.Method

func init() {
	parsed, err := abi.JSON(strings.NewReader(handleOpsABI))
	if err != nil {
		panic("useropbundler: invalid handleOps ABI: " + err.Error())
	}
	handleOpsMethod = parsed.Methods["handleOps"]
	if got := hex.EncodeToString(handleOpsMethod.ID); got != handleOpsSelectorHex {
		panic("useropbundler: handleOps ABI selector drifted from " + handleOpsSelectorHex + ": got " + got)
	}
}

// abiPackedUserOp mirrors PackedUserOperation with the exact field
// order/tags go-ethereum's abi package expects for tuple encoding.
type abiPackedUserOp struct {
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

// EncodeHandleOps builds the calldata for
// handleOps(PackedUserOperation[],address).
func EncodeHandleOps(ops []PackedUserOperation, beneficiary tipstypes.Address) ([]byte, error) {
	tupleArgs := make([]abiPackedUserOp, len(ops))
	for i, op := range ops {
		nonce := op.Nonce
		if nonce == nil {
			nonce = big.NewInt(0)
		}
		tupleArgs[i] = abiPackedUserOp{
			Sender:             op.Sender,
			Nonce:              nonce,
			InitCode:           op.InitCode,
			CallData:           op.CallData,
			AccountGasLimits:   op.AccountGasLimits,
			PreVerificationGas: op.PreVerificationGas,
			GasFees:            op.GasFees,
			PaymasterAndData:   op.PaymasterAndData,
			Signature:          op.Signature,
		}
	}

	packed, err := handleOpsMethod.Inputs.Pack(tupleArgs, beneficiary)
	if err != nil {
		return nil, err
	}
	return append(handleOpsMethod.ID, packed...), nil
}
