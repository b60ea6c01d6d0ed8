// Package useropbundler transforms validated ERC-4337 UserOperations
// into the enshrined EntryPoint.handleOps bundler transaction the
// builder inserts at a known position in each block (spec §4.5).
package useropbundler

import (
	"math/big"

	"github.com/base/tips/internal/tipstypes"
)

// Version distinguishes the v0.6 unpacked layout from the v0.7 packed
// layout, set at JSON-decode time by field presence (spec §3).
type Version int

const (
	VersionV06 Version = iota
	VersionV07
)

// UserOperation is the decoded envelope for both wire versions; v0.7's
// packed accountGasLimits/gasFees fields are unpacked into the same
// named fields v0.6 carries directly, grounded on
// HITEYY-go-obsidian's UserOperation and Patrickming-bundler's
// PackedUserOperation shapes.
type UserOperation struct {
	Version Version        `json:"-"`
	Hash    tipstypes.Hash `json:"-"`

	Sender               tipstypes.Address `json:"sender"`
	Nonce                *big.Int          `json:"nonce"`
	InitCode             []byte            `json:"initCode"`
	CallData             []byte            `json:"callData"`
	CallGasLimit         uint64            `json:"callGasLimit"`
	VerificationGasLimit uint64            `json:"verificationGasLimit"`
	PreVerificationGas   uint64            `json:"preVerificationGas"`
	MaxFeePerGas         *big.Int          `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int          `json:"maxPriorityFeePerGas"`
	PaymasterAndData     []byte            `json:"paymasterAndData"`
	Signature            []byte            `json:"signature"`

	// Paymaster fields, only populated for v0.7 (unpacked from
	// paymasterAndData's structured layout rather than a flat blob).
	Paymaster                     tipstypes.Address
	PaymasterVerificationGasLimit uint64
	PaymasterPostOpGasLimit       uint64
	PaymasterData                 []byte
}

// ComputeHash derives the canonical userOpHash used as the event-log
// key, keccak of sender || nonce || callData || entryPoint || chainId,
// a stand-in for the full EntryPoint getUserOpHash packing (out of
// scope: signing-domain separation beyond this salt is the L2 node's
// concern via simulation). Callers store the result on Hash once at
// admission time rather than recomputing it downstream.
func (op *UserOperation) ComputeHash(entryPoint tipstypes.Address, chainID uint64) tipstypes.Hash {
	nonce := make([]byte, 32)
	if op.Nonce != nil {
		op.Nonce.FillBytes(nonce)
	}
	chain := make([]byte, 8)
	big.NewInt(0).SetUint64(chainID).FillBytes(chain)
	return tipstypes.Keccak256(op.Sender[:], nonce, op.CallData, entryPoint[:], chain)
}

// TotalGasLimit mirrors go-obsidian's TotalGasLimit helper.
func (op *UserOperation) TotalGasLimit() uint64 {
	return op.CallGasLimit + op.VerificationGasLimit + op.PreVerificationGas
}
