package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	arbtypes "github.com/michaelpento.lv/dexarb/types"
	"go.uber.org/zap"
)

// Backend is the subset of *ethclient.Client the wallet and ledger use.
type Backend interface {
	CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Sender broadcasts a signed transaction. Both the node and a private relay satisfy it.
type Sender interface {
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// TxRequest describes a transaction before nonce and fees are attached.
type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	Label    string
}

// Transactor signs, submits and confirms transactions for one account.
type Transactor interface {
	Address() common.Address
	Send(ctx context.Context, req TxRequest) (*types.Receipt, error)
}

// WalletConfig tunes confirmation polling.
type WalletConfig struct {
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	// GasMultiplierPct pads estimated gas when TxRequest.GasLimit is zero.
	GasMultiplierPct uint64
}

// Wallet is the single sequential submitter for the configured account.
type Wallet struct {
	backend Backend
	sender  Sender
	key     *ecdsa.PrivateKey
	address common.Address
	cfg     WalletConfig
	logger  *zap.Logger

	// serializes build+send+confirm so nonces are never reused
	mu      sync.Mutex
	chainID *big.Int
}

// NewWallet parses a hex private key. A nil sender submits through backend.
func NewWallet(backend Backend, sender Sender, hexKey string, cfg WalletConfig, logger *zap.Logger) (*Wallet, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if sender == nil {
		sender = backend
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.GasMultiplierPct == 0 {
		cfg.GasMultiplierPct = 120
	}

	return &Wallet{
		backend: backend,
		sender:  sender,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		cfg:     cfg,
		logger:  logger,
	}, nil
}

func (w *Wallet) Address() common.Address {
	return w.address
}

// NativeBalance reads the account balance at the latest block.
func (w *Wallet) NativeBalance(ctx context.Context) (*big.Int, error) {
	return w.backend.BalanceAt(ctx, w.address, nil)
}

// Send builds a dynamic-fee transaction with a freshly read nonce and fees,
// broadcasts it, and waits for the receipt. Once broadcast, the wait ignores
// cancellation of ctx and is bounded by ConfirmTimeout instead.
func (w *Wallet) Send(ctx context.Context, req TxRequest) (*types.Receipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	signed, err := w.build(ctx, req)
	if err != nil {
		return nil, arbtypes.NewError(arbtypes.KindTransaction, "build "+req.Label, err)
	}

	if err := w.sender.SendTransaction(ctx, signed); err != nil {
		return nil, arbtypes.NewError(arbtypes.KindTransaction, "send "+req.Label, err)
	}

	w.logger.Info("Transaction submitted",
		zap.String("label", req.Label),
		zap.String("hash", signed.Hash().Hex()),
		zap.Uint64("nonce", signed.Nonce()),
		zap.Uint64("gas", signed.Gas()))

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.ConfirmTimeout)
	defer cancel()

	receipt, err := w.WaitReceipt(waitCtx, signed.Hash())
	if err != nil {
		return nil, arbtypes.NewError(arbtypes.KindTransaction, "confirm "+req.Label, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, arbtypes.Errorf(arbtypes.KindTransaction, "confirm "+req.Label,
			"transaction %s reverted", signed.Hash().Hex())
	}

	return receipt, nil
}

func (w *Wallet) build(ctx context.Context, req TxRequest) (*types.Transaction, error) {
	if w.chainID == nil {
		id, err := w.backend.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get chain id: %w", err)
		}
		w.chainID = id
	}

	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	tip, err := w.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tip cap: %w", err)
	}
	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get head: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		to := req.To
		estimated, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  w.address,
			To:    &to,
			Value: value,
			Data:  req.Data,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to estimate gas: %w", err)
		}
		gasLimit = estimated * w.cfg.GasMultiplierPct / 100
	}

	to := req.To
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   w.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	})

	return types.SignTx(tx, types.NewLondonSigner(w.chainID), w.key)
}

// WaitReceipt polls until the receipt is available or ctx ends.
func (w *Wallet) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			w.logger.Debug("Receipt lookup failed", zap.String("hash", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
