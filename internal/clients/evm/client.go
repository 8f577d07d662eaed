// Package evm talks JSON-RPC 2.0 to the node holding the visit-anchor
// contract. Writes go through eth_sendTransaction (the node manages the
// anchoring key) and are confirmed by polling for a receipt; reads are
// eth_call against the latest block.
package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	apperrors "github.com/veridata/trialbridge-backend/internal/pkg/errors"
	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
)

type Client interface {
	AnchorRoot(ctx context.Context, trialKey [32]byte, dayIndex uint64, root [32]byte) (string, error)
	GetRoot(ctx context.Context, trialKey [32]byte, dayIndex uint64) ([32]byte, error)
}

type Config struct {
	RPCURL          string
	ContractAddress string
	FromAddress     string
	RequestTimeout  time.Duration
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
}

type client struct {
	http  *resty.Client
	cfg   Config
	log   *logger.Logger
	reqID atomic.Int64
}

func NewClient(cfg Config, baseLog *logger.Logger) (Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("missing ledger RPC URL")
	}
	if cfg.ContractAddress == "" {
		return nil, fmt.Errorf("missing anchor contract address")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	http := resty.New().
		SetBaseURL(cfg.RPCURL).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Content-Type", "application/json")
	return &client{
		http: http,
		cfg:  cfg,
		log:  baseLog.With("client", "EVMClient"),
	}, nil
}

type rpcRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type callParams struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Data string `json:"data"`
}

type txReceipt struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
	BlockNumber     string `json:"blockNumber"`
}

func (c *client) rpc(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	var out rpcResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rpcRequest{Jsonrpc: "2.0", Method: method, Params: params, ID: c.reqID.Add(1)}).
		SetResult(&out).
		Post("")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrExternalLedger, method, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s: http status %s", apperrors.ErrExternalLedger, method, resp.Status())
	}
	if out.Error != nil {
		return nil, fmt.Errorf("%w: %s: rpc error %d: %s", apperrors.ErrExternalLedger, method, out.Error.Code, out.Error.Message)
	}
	return out.Result, nil
}

// GetRoot reads the anchored root for (trialKey, dayIndex). An all-zero
// word is the contract's unset sentinel.
func (c *client) GetRoot(ctx context.Context, trialKey [32]byte, dayIndex uint64) ([32]byte, error) {
	data := encodeCall("getRoot(bytes32,uint256)", trialKey, uint64Word(dayIndex))
	raw, err := c.rpc(ctx, "eth_call", callParams{To: c.cfg.ContractAddress, Data: data}, "latest")
	if err != nil {
		return [32]byte{}, err
	}
	var result string
	if err := json.Unmarshal(raw, &result); err != nil {
		return [32]byte{}, fmt.Errorf("%w: eth_call result: %v", apperrors.ErrExternalLedger, err)
	}
	return decodeWord(result)
}

// AnchorRoot submits the anchoring transaction and blocks until the node
// reports a confirmed receipt or the confirm timeout elapses. Returns the
// transaction hash as the opaque reference.
func (c *client) AnchorRoot(ctx context.Context, trialKey [32]byte, dayIndex uint64, root [32]byte) (string, error) {
	data := encodeCall("anchorRoot(bytes32,uint256,bytes32)", trialKey, uint64Word(dayIndex), root)
	raw, err := c.rpc(ctx, "eth_sendTransaction", callParams{
		From: c.cfg.FromAddress,
		To:   c.cfg.ContractAddress,
		Data: data,
	})
	if err != nil {
		return "", err
	}
	var txHash string
	if err := json.Unmarshal(raw, &txHash); err != nil {
		return "", fmt.Errorf("%w: eth_sendTransaction result: %v", apperrors.ErrExternalLedger, err)
	}
	c.log.Info("Anchor transaction submitted, awaiting confirmation", "tx_hash", txHash)
	return txHash, c.awaitReceipt(ctx, txHash)
}

func (c *client) awaitReceipt(ctx context.Context, txHash string) error {
	deadline := time.Now().Add(c.cfg.ConfirmTimeout)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: awaiting receipt for %s: %v", apperrors.ErrExternalLedger, txHash, ctx.Err())
		case <-ticker.C:
			raw, err := c.rpc(ctx, "eth_getTransactionReceipt", txHash)
			if err != nil {
				return err
			}
			if string(raw) != "null" && len(raw) > 0 {
				var receipt txReceipt
				if err := json.Unmarshal(raw, &receipt); err != nil {
					return fmt.Errorf("%w: decode receipt for %s: %v", apperrors.ErrExternalLedger, txHash, err)
				}
				if receipt.Status != "0x1" {
					return fmt.Errorf("%w: transaction %s reverted", apperrors.ErrExternalLedger, txHash)
				}
				c.log.Info("Anchor transaction confirmed", "tx_hash", txHash, "block", receipt.BlockNumber)
				return nil
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("%w: transaction %s unconfirmed after %s", apperrors.ErrExternalLedger, txHash, c.cfg.ConfirmTimeout)
			}
		}
	}
}
