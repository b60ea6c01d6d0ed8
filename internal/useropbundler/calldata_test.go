package useropbundler_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/base/tips/internal/useropbundler"
)

func TestEncodeHandleOpsPrependsSelector(t *testing.T) {
	op := useropbundler.PackV07(&useropbundler.UserOperation{
		Sender:               common.HexToAddress("0xdead"),
		Nonce:                big.NewInt(1),
		CallData:             []byte{0x01, 0x02},
		VerificationGasLimit: 50000,
		CallGasLimit:         50000,
		MaxFeePerGas:         big.NewInt(1),
		MaxPriorityFeePerGas: big.NewInt(1),
	})

	calldata, err := useropbundler.EncodeHandleOps([]useropbundler.PackedUserOperation{op}, common.HexToAddress("0xb0"))
	require.NoError(t, err)
	require.Len(t, calldata[:4], 4)
	require.Equal(t, []byte{0x1f, 0xad, 0x94, 0x8c}, calldata[:4])
	require.Greater(t, len(calldata), 4)
}

func TestEncodeHandleOpsBatchesMultipleOps(t *testing.T) {
	op1 := useropbundler.PackV07(&useropbundler.UserOperation{
		Sender: common.HexToAddress("0x1"),
		Nonce:  big.NewInt(1),
	})
	op2 := useropbundler.PackV07(&useropbundler.UserOperation{
		Sender: common.HexToAddress("0x2"),
		Nonce:  big.NewInt(2),
	})

	calldata, err := useropbundler.EncodeHandleOps([]useropbundler.PackedUserOperation{op1, op2}, common.HexToAddress("0xb0"))
	require.NoError(t, err)
	require.NotEmpty(t, calldata)
}

func TestEncodeHandleOpsEmptyBatch(t *testing.T) {
	calldata, err := useropbundler.EncodeHandleOps(nil, common.HexToAddress("0xb0"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x1f, 0xad, 0x94, 0x8c}, calldata[:4])
}
