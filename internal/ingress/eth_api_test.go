package ingress_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/base/tips/internal/bundle"
	"github.com/base/tips/internal/ingress"
	"github.com/base/tips/internal/useropbundler"
)

const testChainID = 8453

var testKey, _ = crypto.HexToECDSA("aeb1c4a651a4c1c6ff5c8d5c76c53c1eeae6b8dc79c1c17c3d2a1e6a0a8f9d01")

func signedRawTx(t *testing.T, nonce uint64) []byte {
	t.Helper()
	raw, _ := signedRawTxWithHash(t, nonce)
	return raw
}

func signedRawTxWithHash(t *testing.T, nonce uint64) ([]byte, common.Hash) {
	t.Helper()
	to := common.HexToAddress("0x00000000000000000000000000000000000ff1")
	tx := types.MustSignNewTx(testKey, types.NewLondonSigner(big.NewInt(testChainID)), &types.DynamicFeeTx{
		ChainID:   big.NewInt(testChainID),
		Nonce:     nonce,
		To:        &to,
		Gas:       21000,
		GasFeeCap: big.NewInt(1_000_000_000),
		GasTipCap: big.NewInt(1),
		Value:     big.NewInt(0),
	})
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw, tx.Hash()
}

// fakePublisher records every Publish call in-memory so tests can
// assert on topic/key/value without dialing a broker.
type fakePublisher struct {
	mu      sync.Mutex
	records []publishedRecord
	err     error
}

type publishedRecord struct {
	topic string
	key   []byte
	value []byte
}

func (f *fakePublisher) Publish(_ context.Context, topic string, key, value []byte) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, publishedRecord{topic: topic, key: key, value: value})
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeSimulator struct {
	result *ingress.SimulationResult
	err    error
	delay  time.Duration
}

func (f *fakeSimulator) ValidateUserOperation(ctx context.Context, _ *useropbundler.UserOperation, _ common.Address) (*ingress.SimulationResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestServer(pub *fakePublisher, sim ingress.SimulationClient) *ingress.Server {
	cfg := ingress.Config{
		ListenAddr:                   ":0",
		ChainID:                      testChainID,
		EntryPoints:                  []common.Address{common.HexToAddress("0xEE")},
		ValidateUserOperationTimeout: 50 * time.Millisecond,
	}
	return ingress.NewServer(cfg, pub, sim)
}

// fakeBundleLookup answers a fixed bundleHash->uuid mapping without
// dialing a Bundle Store, mirroring fakeSimulator's role for
// SimulationClient.
type fakeBundleLookup struct {
	byHash map[common.Hash]uuid.UUID
	err    error
}

func (f *fakeBundleLookup) GetBundleByHash(_ context.Context, hash common.Hash) (uuid.UUID, bool, error) {
	if f.err != nil {
		return uuid.Nil, false, f.err
	}
	id, ok := f.byHash[hash]
	return id, ok, nil
}

// bundleHashOf mirrors the bundleHash SendBundle derives from a raw tx
// so tests can pre-seed a fakeBundleLookup with a matching entry.
func bundleHashOf(t *testing.T, raw []byte) common.Hash {
	t.Helper()
	signer := types.LatestSignerForChainID(big.NewInt(testChainID))
	tx, err := bundle.DecodeTx(raw, signer)
	require.NoError(t, err)
	return bundle.Hash([]bundle.Tx{tx})
}

func TestSendRawTransactionPublishesCreated(t *testing.T) {
	pub := &fakePublisher{}
	api := newTestServer(pub, &fakeSimulator{}).RPCAPI()

	raw := signedRawTx(t, 0)
	hash, err := api.SendRawTransaction(context.Background(), raw)
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, hash)
	require.Equal(t, 1, pub.count())
}

func TestSendRawTransactionRejectsBadEncoding(t *testing.T) {
	pub := &fakePublisher{}
	api := newTestServer(pub, &fakeSimulator{}).RPCAPI()

	_, err := api.SendRawTransaction(context.Background(), []byte{0xde, 0xad})
	require.Error(t, err)
	require.Equal(t, 0, pub.count())
}

func TestSendBundleCreateThenReplace(t *testing.T) {
	pub := &fakePublisher{}
	api := newTestServer(pub, &fakeSimulator{}).RPCAPI()

	raw, hash := signedRawTxWithHash(t, 1)
	res, err := api.SendBundle(context.Background(), ingress.SendBundleArgs{
		Txs:               []hexutil.Bytes{raw},
		BlockNumber:       100,
		RevertingTxHashes: []common.Hash{hash},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, res.UUID)
	require.Equal(t, 1, pub.count())

	replacement := res.UUID
	raw2, hash2 := signedRawTxWithHash(t, 2)
	res2, err := api.SendBundle(context.Background(), ingress.SendBundleArgs{
		Txs:               []hexutil.Bytes{raw2},
		BlockNumber:       101,
		RevertingTxHashes: []common.Hash{hash2},
		ReplacementUuid:   &replacement,
	})
	require.NoError(t, err)
	require.Equal(t, replacement, res2.UUID)
	require.Equal(t, 2, pub.count())
}

func TestSendBundleMergesIntoExistingBundleByHash(t *testing.T) {
	pub := &fakePublisher{}
	raw, hash := signedRawTxWithHash(t, 5)

	existing := uuid.New()
	lookup := &fakeBundleLookup{byHash: map[common.Hash]uuid.UUID{
		bundleHashOf(t, raw): existing,
	}}
	api := newTestServer(pub, &fakeSimulator{}).WithBundleLookup(lookup).RPCAPI()

	res, err := api.SendBundle(context.Background(), ingress.SendBundleArgs{
		Txs:               []hexutil.Bytes{raw},
		BlockNumber:       100,
		RevertingTxHashes: []common.Hash{hash},
	})
	require.NoError(t, err)
	require.Equal(t, existing, res.UUID)
	require.Equal(t, 1, pub.count())
}

func TestSendBundleFallsBackToFreshUUIDOnLookupError(t *testing.T) {
	pub := &fakePublisher{}
	lookup := &fakeBundleLookup{err: errors.New("bundle store unreachable")}
	api := newTestServer(pub, &fakeSimulator{}).WithBundleLookup(lookup).RPCAPI()

	raw, hash := signedRawTxWithHash(t, 6)
	res, err := api.SendBundle(context.Background(), ingress.SendBundleArgs{
		Txs:               []hexutil.Bytes{raw},
		BlockNumber:       100,
		RevertingTxHashes: []common.Hash{hash},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, res.UUID)
	require.Equal(t, 1, pub.count())
}

func TestSendBundleRejectsUnsupportedFieldSet(t *testing.T) {
	pub := &fakePublisher{}
	api := newTestServer(pub, &fakeSimulator{}).RPCAPI()

	refundPct := 10
	raw := signedRawTx(t, 3)
	_, err := api.SendBundle(context.Background(), ingress.SendBundleArgs{
		Txs:           []hexutil.Bytes{raw},
		BlockNumber:   100,
		RefundPercent: &refundPct,
	})
	require.Error(t, err)
	require.Equal(t, 0, pub.count())
}

func TestSendBundleRejectsRevertingHashesMismatch(t *testing.T) {
	pub := &fakePublisher{}
	api := newTestServer(pub, &fakeSimulator{}).RPCAPI()

	raw := signedRawTx(t, 4)
	_, err := api.SendBundle(context.Background(), ingress.SendBundleArgs{
		Txs:         []hexutil.Bytes{raw},
		BlockNumber: 100,
	})
	require.Error(t, err)
	require.Equal(t, 0, pub.count())
}

func TestSendBundleRejectsTooManyTx(t *testing.T) {
	pub := &fakePublisher{}
	api := newTestServer(pub, &fakeSimulator{}).RPCAPI()

	txs := make([]hexutil.Bytes, 0, 4)
	for i := uint64(0); i < 4; i++ {
		txs = append(txs, signedRawTx(t, i))
	}
	_, err := api.SendBundle(context.Background(), ingress.SendBundleArgs{
		Txs:         txs,
		BlockNumber: 100,
	})
	require.Error(t, err)
	require.Equal(t, 0, pub.count())
}

func TestCancelBundleAlwaysPublishes(t *testing.T) {
	pub := &fakePublisher{}
	api := newTestServer(pub, &fakeSimulator{}).RPCAPI()

	err := api.CancelBundle(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, 1, pub.count())
}

func TestSendUserOperationRejectsUnknownEntryPoint(t *testing.T) {
	pub := &fakePublisher{}
	api := newTestServer(pub, &fakeSimulator{}).RPCAPI()

	opData := validUserOpJSON()
	_, err := api.SendUserOperation(context.Background(), opData, common.HexToAddress("0xBAD"))
	require.Error(t, err)
	require.Equal(t, 0, pub.count())
}

func TestSendUserOperationAdmitsOnSuccessfulSimulation(t *testing.T) {
	pub := &fakePublisher{}
	sim := &fakeSimulator{result: &ingress.SimulationResult{GasUsed: 100000}}
	api := newTestServer(pub, sim).RPCAPI()

	opData := validUserOpJSON()
	hash, err := api.SendUserOperation(context.Background(), opData, common.HexToAddress("0xEE"))
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, hash)
	require.Equal(t, 1, pub.count())
}

func TestSendUserOperationSurfacesSimulationTimeout(t *testing.T) {
	pub := &fakePublisher{}
	sim := &fakeSimulator{delay: time.Second}
	api := newTestServer(pub, sim).RPCAPI()

	opData := validUserOpJSON()
	_, err := api.SendUserOperation(context.Background(), opData, common.HexToAddress("0xEE"))
	require.Error(t, err)
	require.Equal(t, 0, pub.count())
}

func TestSendUserOperationSurfacesSimulationRejection(t *testing.T) {
	pub := &fakePublisher{}
	sim := &fakeSimulator{err: errors.New("boom")}
	api := newTestServer(pub, sim).RPCAPI()

	opData := validUserOpJSON()
	_, err := api.SendUserOperation(context.Background(), opData, common.HexToAddress("0xEE"))
	require.Error(t, err)
	require.Equal(t, 0, pub.count())
}

func TestSupportedEntryPointsReturnsWhitelist(t *testing.T) {
	pub := &fakePublisher{}
	api := newTestServer(pub, &fakeSimulator{}).RPCAPI()

	eps := api.SupportedEntryPoints(context.Background())
	require.Equal(t, []common.Address{common.HexToAddress("0xEE")}, eps)
}

func validUserOpJSON() json.RawMessage {
	return json.RawMessage(`{
		"sender": "0x000000000000000000000000000000000000dead",
		"nonce": 1,
		"callGasLimit": 50000,
		"verificationGasLimit": 60000,
		"preVerificationGas": 21000,
		"maxFeePerGas": 1,
		"maxPriorityFeePerGas": 1
	}`)
}
