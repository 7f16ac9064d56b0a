package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	arbtypes "github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeBackend struct {
	*testutils.FakeCaller

	mu       sync.Mutex
	nonce    uint64
	baseFee  *big.Int
	tip      *big.Int
	status   uint64
	sent     []*types.Transaction
	sendErr  error
	balance  *big.Int
	receipts map[common.Hash]*types.Receipt
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		FakeCaller: testutils.NewFakeCaller(),
		nonce:      7,
		baseFee:    big.NewInt(1_000_000),
		tip:        big.NewInt(100_000),
		status:     types.ReceiptStatusSuccessful,
		balance:    big.NewInt(0),
		receipts:   make(map[common.Hash]*types.Receipt),
	}
}

func (b *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(8453), nil }

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonce, nil
}

func (b *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) { return b.tip, nil }

func (b *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: b.baseFee, Number: big.NewInt(100), Time: 1_700_000_000}, nil
}

func (b *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (b *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (b *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return b.balance, nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	b.nonce++
	b.receipts[tx.Hash()] = &types.Receipt{Status: b.status, TxHash: tx.Hash(), GasUsed: 50_000}
	return nil
}

func newTestWallet(t *testing.T, backend *fakeBackend) *Wallet {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	w, err := NewWallet(backend, nil, hexutil.Encode(crypto.FromECDSA(key)), WalletConfig{
		ConfirmTimeout: time.Second,
		PollInterval:   5 * time.Millisecond,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return w
}

func TestWalletSend(t *testing.T) {
	backend := newFakeBackend()
	w := newTestWallet(t, backend)
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	receipt, err := w.Send(context.Background(), TxRequest{To: to, Data: []byte{1, 2}, Label: "swap"})
	require.NoError(t, err)
	require.NotNil(t, receipt)

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(120_000), tx.Gas(), "estimated gas is padded")
	assert.Equal(t, big.NewInt(2_100_000), tx.GasFeeCap(), "fee cap is 2*base+tip")
	assert.Equal(t, big.NewInt(100_000), tx.GasTipCap())

	from, err := types.Sender(types.NewLondonSigner(big.NewInt(8453)), tx)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), from)

	// nonce is read fresh for the next transaction
	_, err = w.Send(context.Background(), TxRequest{To: to, GasLimit: 60_000, Label: "approve"})
	require.NoError(t, err)
	assert.Equal(t, uint64(8), backend.sent[1].Nonce())
	assert.Equal(t, uint64(60_000), backend.sent[1].Gas())
}

func TestWalletSendFailures(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	t.Run("revert", func(t *testing.T) {
		backend := newFakeBackend()
		backend.status = types.ReceiptStatusFailed
		w := newTestWallet(t, backend)

		receipt, err := w.Send(context.Background(), TxRequest{To: to, GasLimit: 21000, Label: "swap"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, arbtypes.ErrTransaction))
		assert.NotNil(t, receipt)
	})

	t.Run("send rejected", func(t *testing.T) {
		backend := newFakeBackend()
		backend.sendErr = errors.New("nonce too low")
		w := newTestWallet(t, backend)

		_, err := w.Send(context.Background(), TxRequest{To: to, GasLimit: 21000, Label: "swap"})
		require.Error(t, err)
		assert.Equal(t, arbtypes.KindTransaction, arbtypes.KindOf(err))
	})

	t.Run("cancelled before broadcast", func(t *testing.T) {
		backend := newFakeBackend()
		w := newTestWallet(t, backend)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := w.Send(ctx, TxRequest{To: to, GasLimit: 21000})
		require.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, backend.sent)
	})
}

func TestLedgerEnsureAllowance(t *testing.T) {
	backend := newFakeBackend()
	w := newTestWallet(t, backend)
	ledger := NewLedger(backend, backend, w, zaptest.NewLogger(t))

	token := common.HexToAddress("0x00000000000000000000000000000000000000e1")
	router := common.HexToAddress("0x00000000000000000000000000000000000000f1")

	allowance := big.NewInt(500)
	backend.Handle(token, ERC20(), "allowance", func(args []interface{}) ([]interface{}, error) {
		assert.Equal(t, w.Address(), args[0].(common.Address))
		assert.Equal(t, router, args[1].(common.Address))
		return []interface{}{allowance}, nil
	})

	// sufficient allowance: no transaction
	receipt, err := ledger.EnsureAllowance(context.Background(), token, router, big.NewInt(400), 50_000)
	require.NoError(t, err)
	assert.Nil(t, receipt)
	assert.Empty(t, backend.sent)

	// insufficient allowance: exactly one approve for the requested amount
	receipt, err = ledger.EnsureAllowance(context.Background(), token, router, big.NewInt(1000), 50_000)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	require.Len(t, backend.sent, 1)

	erc20ABI := ERC20()
	method, err := erc20ABI.MethodById(backend.sent[0].Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "approve", method.Name)
	args, err := method.Inputs.Unpack(backend.sent[0].Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), args[1])
}

func TestLedgerBalancesAndWrap(t *testing.T) {
	backend := newFakeBackend()
	backend.balance = big.NewInt(1e18)
	w := newTestWallet(t, backend)
	ledger := NewLedger(backend, backend, w, zaptest.NewLogger(t))

	weth := common.HexToAddress("0x4200000000000000000000000000000000000006")
	backend.Returns(weth, ERC20(), "balanceOf", big.NewInt(42))

	bal, err := ledger.TokenBalance(context.Background(), weth)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), bal)

	native, err := ledger.NativeBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1e18), native)

	_, err = ledger.Wrap(context.Background(), weth, big.NewInt(5e17), 60_000)
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)
	assert.Equal(t, big.NewInt(5e17), backend.sent[0].Value())
	assert.Equal(t, weth, *backend.sent[0].To())
}
