package testutils

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// CallHandler answers one contract method call with unpacked arguments.
type CallHandler func(args []interface{}) ([]interface{}, error)

type route struct {
	abi      abi.ABI
	handlers map[string]CallHandler
}

// FakeCaller is an in-memory bind.ContractCaller. Calls are routed by
// contract address and method selector, so tests can stand up pools,
// tokens and routers without a node.
type FakeCaller struct {
	mu     sync.Mutex
	routes map[common.Address]*route
	calls  map[string]int
}

func NewFakeCaller() *FakeCaller {
	return &FakeCaller{
		routes: make(map[common.Address]*route),
		calls:  make(map[string]int),
	}
}

// Handle registers fn for method on the contract at addr described by contractABI.
func (f *FakeCaller) Handle(addr common.Address, contractABI abi.ABI, method string, fn CallHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.routes[addr]
	if !ok {
		r = &route{abi: contractABI, handlers: make(map[string]CallHandler)}
		f.routes[addr] = r
	}
	r.handlers[method] = fn
}

// Returns registers a handler that always returns outs.
func (f *FakeCaller) Returns(addr common.Address, contractABI abi.ABI, method string, outs ...interface{}) {
	f.Handle(addr, contractABI, method, func([]interface{}) ([]interface{}, error) {
		return outs, nil
	})
}

// Fails registers a handler that always returns err.
func (f *FakeCaller) Fails(addr common.Address, contractABI abi.ABI, method string, err error) {
	f.Handle(addr, contractABI, method, func([]interface{}) ([]interface{}, error) {
		return nil, err
	})
}

// Calls returns how often method was invoked on addr.
func (f *FakeCaller) Calls(addr common.Address, method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[addr.Hex()+"."+method]
}

func (f *FakeCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.routes[contract]; ok {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

func (f *FakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if call.To == nil || len(call.Data) < 4 {
		return nil, fmt.Errorf("malformed call")
	}

	f.mu.Lock()
	r, ok := f.routes[*call.To]
	if !ok {
		f.mu.Unlock()
		return nil, nil
	}
	method, err := r.abi.MethodById(call.Data[:4])
	if err != nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("unknown selector on %s: %w", call.To.Hex(), err)
	}
	fn, ok := r.handlers[method.Name]
	f.calls[call.To.Hex()+"."+method.Name]++
	f.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("execution reverted: no handler for %s", method.Name)
	}

	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	outs, err := fn(args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(outs...)
}

// MustABI parses a JSON ABI or fails the test.
func MustABI(t testing.TB, definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	require.NoError(t, err)
	return parsed
}

// NewKey returns a fresh secp256k1 key and its address.
func NewKey(t testing.TB) (*ecdsa.PrivateKey, common.Address) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

// CreateMockTransaction creates a signed EIP-1559 transaction for chain 8453.
func CreateMockTransaction(t testing.TB) *types.Transaction {
	key, _ := NewKey(t)
	chainID := big.NewInt(8453)
	to := common.HexToAddress("0x1234567890123456789012345678901234567890")

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1_000_000),
		GasFeeCap: big.NewInt(2_000_000_000),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	})

	signed, err := types.SignTx(tx, types.NewLondonSigner(chainID), key)
	require.NoError(t, err)
	return signed
}

// Wei parses a base-10 integer or panics; for table literals.
func Wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid integer " + s)
	}
	return v
}
