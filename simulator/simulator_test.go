package simulator

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/dexarb/chain"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeBackend struct {
	gas     uint64
	estErr  error
	ret     []byte
	callErr error
	last    ethereum.CallMsg
}

func (f *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.last = msg
	return f.gas, f.estErr
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return f.ret, f.callErr
}

// rpcRevert mimics the JSON-RPC error a node returns for a reverted call.
type rpcRevert struct {
	data string
}

func (e rpcRevert) Error() string          { return "execution reverted" }
func (e rpcRevert) ErrorData() interface{} { return e.data }

func revertData(t *testing.T, reason string) string {
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(selector, packed...))
}

func TestSimulate(t *testing.T) {
	from := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	req := chain.TxRequest{To: common.HexToAddress("0x00000000000000000000000000000000000000f1"), Data: []byte{1, 2, 3, 4}, GasLimit: 150000, Label: "swap"}

	tests := []struct {
		name       string
		backend    *fakeBackend
		wantOK     bool
		wantReason string
	}{
		{
			name:    "success",
			backend: &fakeBackend{gas: 120000, ret: []byte{0x01}},
			wantOK:  true,
		},
		{
			name:       "estimate reverts with encoded reason",
			backend:    &fakeBackend{estErr: rpcRevert{data: revertData(t, "UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT")}},
			wantReason: "UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT",
		},
		{
			name:       "call reverts with message only",
			backend:    &fakeBackend{gas: 90000, callErr: errors.New("execution reverted: STF")},
			wantReason: "STF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := NewSimulator(tt.backend, zaptest.NewLogger(t))
			res, err := sim.Simulate(context.Background(), from, req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, res.Success)
			assert.Equal(t, tt.wantReason, res.RevertReason)
			assert.Equal(t, from, tt.backend.last.From)
			assert.Equal(t, uint64(150000), tt.backend.last.Gas)
		})
	}
}

func TestRevertReason(t *testing.T) {
	assert.Equal(t, "", RevertReason(nil))
	assert.Equal(t, "execution reverted", RevertReason(errors.New("execution reverted")))
	assert.Equal(t, "nonce too low", RevertReason(errors.New("nonce too low")))
	assert.Equal(t, "execution reverted", RevertReason(rpcRevert{data: "0xdeadbeef"}))
}

func TestDryRun(t *testing.T) {
	from := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	req := chain.TxRequest{To: common.HexToAddress("0x00000000000000000000000000000000000000f1"), Data: []byte{1, 2, 3, 4}, Label: "approve"}

	ok := NewDryRun(NewSimulator(&fakeBackend{gas: 46000}, zaptest.NewLogger(t)), from, zaptest.NewLogger(t))
	assert.Equal(t, from, ok.Address())
	receipt, err := ok.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, uint64(46000), receipt.GasUsed)

	bad := NewDryRun(NewSimulator(&fakeBackend{estErr: errors.New("execution reverted: STF")}, zaptest.NewLogger(t)), from, zaptest.NewLogger(t))
	_, err = bad.Send(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTransaction)
	assert.Contains(t, err.Error(), "STF")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ok.Send(ctx, req)
	assert.ErrorIs(t, err, context.Canceled)
}
