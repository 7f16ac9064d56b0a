package flashbots

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	contentTypeJSON              = "application/json"
	flashbotsXHeader             = "X-Flashbots-Signature"
	methodSendPrivateTransaction = "eth_sendPrivateTransaction"

	// a private transaction is dropped by the relay after this many blocks
	defaultMaxBlocks = 25
)

// HeadReader supplies the current block number for the inclusion window.
type HeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Client submits signed transactions to a private relay so they never
// appear in the public mempool.
type Client struct {
	httpClient *http.Client
	relayURL   string
	authSigner *ecdsa.PrivateKey
	head       HeadReader
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a relay client. authKey only identifies the searcher to
// the relay; it never holds funds. A nil head sends without an inclusion
// window.
func NewClient(relayURL string, authKey *ecdsa.PrivateKey, head HeadReader, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Second * 3,
		},
		relayURL:   relayURL,
		authSigner: authKey,
		head:       head,
		limiter:    rate.NewLimiter(rate.Limit(5), 1),
		logger:     logger,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RelayError     `json:"error"`
}

// RelayError is a JSON-RPC error returned by the relay.
type RelayError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

type privateTxParams struct {
	Tx             string `json:"tx"`
	MaxBlockNumber string `json:"maxBlockNumber,omitempty"`
}

// SendPrivateTransaction submits signed for inclusion up to maxBlock. A nil
// maxBlock lets the relay pick its default window.
func (c *Client) SendPrivateTransaction(ctx context.Context, signed *types.Transaction, maxBlock *big.Int) (common.Hash, error) {
	raw, err := signed.MarshalBinary()
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode transaction: %w", err)
	}

	params := privateTxParams{Tx: hexutil.Encode(raw)}
	if maxBlock != nil {
		params.MaxBlockNumber = hexutil.EncodeBig(maxBlock)
	}

	var hash common.Hash
	if err := c.call(ctx, methodSendPrivateTransaction, []interface{}{params}, &hash); err != nil {
		return common.Hash{}, err
	}

	c.logger.Info("Private transaction submitted",
		zap.String("hash", hash.Hex()),
		zap.String("maxBlock", params.MaxBlockNumber))
	return hash, nil
}

// SendTransaction makes the relay a drop-in chain.Sender for the wallet.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	var maxBlock *big.Int
	if c.head != nil {
		current, err := c.head.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to read block number: %w", err)
		}
		maxBlock = new(big.Int).SetUint64(current + defaultMaxBlocks)
	}

	hash, err := c.SendPrivateTransaction(ctx, tx, maxBlock)
	if err != nil {
		return err
	}
	if hash != tx.Hash() {
		c.logger.Warn("Relay returned a different hash",
			zap.String("expected", tx.Hash().Hex()),
			zap.String("got", hash.Hex()))
	}
	return nil
}

// Signature returns the X-Flashbots-Signature value for payload: the auth
// address and its signature over the hex keccak of the body.
func Signature(payload []byte, key *ecdsa.PrivateKey) (string, error) {
	signature, err := crypto.Sign(
		accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(payload)))),
		key,
	)
	if err != nil {
		return "", fmt.Errorf("failed to sign request: %w", err)
	}
	return fmt.Sprintf("%s:%s",
		crypto.PubkeyToAddress(key.PublicKey).Hex(),
		hexutil.Encode(signature),
	), nil
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	header, err := Signature(payload, c.authSigner)
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", contentTypeJSON)
	req.Header.Add("Accept", contentTypeJSON)
	req.Header.Add(flashbotsXHeader, header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}
