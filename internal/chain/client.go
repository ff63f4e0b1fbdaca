// Package chain provides the JSON-RPC client for the external asset-issuance
// and bank ledger the escrow controller runs against.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minted-network/escrow_layer/internal/app/domain/token"
)

// Client talks to the ledger node over JSON-RPC.
type Client struct {
	rpcURL     string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	RPCURL  string
	Timeout time.Duration
}

// NewClient creates a new ledger client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Call makes an RPC call to the ledger node.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// =============================================================================
// Issuance and Bank Methods
// =============================================================================

// CreateAssetClass asks the issuance module to create a uniquely named asset
// class. The ledger confirms asynchronously by invoking the controller's
// asset-created hook with the same correlation id.
func (c *Client) CreateAssetClass(ctx context.Context, owner, name, correlationID string) error {
	_, err := c.Call(ctx, "createassetclass", []interface{}{owner, name, correlationID})
	return err
}

// Mint mints amount units of the asset class to the given address.
func (c *Client) Mint(ctx context.Context, assetID string, amount uint64, to string) error {
	_, err := c.Call(ctx, "mint", []interface{}{assetID, amount, to})
	return err
}

// RegisterTransferHook installs hookAddress as the pre-transfer authorizer
// for the asset class. The ledger invokes the hook synchronously before
// committing any movement of the asset and aborts the transfer on denial.
func (c *Client) RegisterTransferHook(ctx context.Context, assetID, hookAddress string) error {
	_, err := c.Call(ctx, "registertransferhook", []interface{}{assetID, hookAddress})
	return err
}

// Send transfers funds from the controller's account to the given address.
func (c *Client) Send(ctx context.Context, to string, amount token.Coin) error {
	_, err := c.Call(ctx, "send", []interface{}{to, amount.Amount, amount.Denom})
	return err
}

// BalanceOf returns the address's balance of the given denomination.
func (c *Client) BalanceOf(ctx context.Context, address, denom string) (uint64, error) {
	result, err := c.Call(ctx, "getbalance", []interface{}{address, denom})
	if err != nil {
		return 0, err
	}

	var balance uint64
	if err := json.Unmarshal(result, &balance); err != nil {
		return 0, err
	}
	return balance, nil
}
