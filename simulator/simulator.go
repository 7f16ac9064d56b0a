package simulator

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/michaelpento.lv/dexarb/chain"
	arbtypes "github.com/michaelpento.lv/dexarb/types"
	"go.uber.org/zap"
)

// Backend is the node surface needed to pre-flight a transaction.
type Backend interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Result is the outcome of a simulated transaction.
type Result struct {
	Success      bool
	GasUsed      uint64
	ReturnData   []byte
	RevertReason string
	Err          error
}

// Simulator runs transactions against the latest state without broadcasting them.
type Simulator struct {
	backend Backend
	logger  *zap.Logger
}

func NewSimulator(backend Backend, logger *zap.Logger) *Simulator {
	return &Simulator{
		backend: backend,
		logger:  logger,
	}
}

// Simulate estimates gas for req and then executes it as a call. A revert is
// reported in the result, not as an error; the error is reserved for
// cancellation.
func (s *Simulator) Simulate(ctx context.Context, from common.Address, req chain.TxRequest) (*Result, error) {
	to := req.To
	msg := ethereum.CallMsg{
		From:  from,
		To:    &to,
		Gas:   req.GasLimit,
		Value: req.Value,
		Data:  req.Data,
	}

	gasUsed, err := s.backend.EstimateGas(ctx, msg)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return s.failed(req, gasUsed, err), nil
	}

	ret, err := s.backend.CallContract(ctx, msg, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return s.failed(req, gasUsed, err), nil
	}

	return &Result{Success: true, GasUsed: gasUsed, ReturnData: ret}, nil
}

func (s *Simulator) failed(req chain.TxRequest, gasUsed uint64, err error) *Result {
	reason := RevertReason(err)
	s.logger.Debug("Simulation reverted",
		zap.String("label", req.Label),
		zap.String("to", req.To.Hex()),
		zap.String("reason", reason))
	return &Result{Success: false, GasUsed: gasUsed, RevertReason: reason, Err: err}
}

// RevertReason extracts a human readable reason from a call error. Nodes put
// the ABI encoded Error(string) payload in the JSON-RPC error data; in-process
// backends usually only have the message.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(hexData); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason
				}
			}
		}
	}

	msg := err.Error()
	if i := strings.Index(msg, "execution reverted"); i >= 0 {
		reason := strings.TrimPrefix(msg[i:], "execution reverted")
		reason = strings.TrimLeft(reason, ": ")
		if reason != "" {
			return reason
		}
		return "execution reverted"
	}
	return msg
}

// DryRun is a chain.Transactor that simulates instead of broadcasting. Every
// Send returns a synthetic successful receipt or a transaction failure
// carrying the revert reason.
type DryRun struct {
	sim    *Simulator
	from   common.Address
	logger *zap.Logger
}

func NewDryRun(sim *Simulator, from common.Address, logger *zap.Logger) *DryRun {
	return &DryRun{sim: sim, from: from, logger: logger}
}

func (d *DryRun) Address() common.Address {
	return d.from
}

func (d *DryRun) Send(ctx context.Context, req chain.TxRequest) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := d.sim.Simulate(ctx, d.from, req)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, arbtypes.Errorf(arbtypes.KindTransaction, "simulate "+req.Label, "reverted: %s", res.RevertReason)
	}

	d.logger.Info("Dry run: transaction simulated",
		zap.String("label", req.Label),
		zap.String("to", req.To.Hex()),
		zap.Uint64("gas", res.GasUsed))
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, GasUsed: res.GasUsed}, nil
}
