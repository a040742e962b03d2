package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// Environment endpoints and chain IDs. A wallet may override the endpoint
// but not the chain ID for its environment.
const (
	ProdNodeURL    = "https://rpc.mainnet.tradewind.network"
	TestnetNodeURL = "https://rpc.testnet.tradewind.network"

	ProdChainID    = "tradewind-1"
	TestnetChainID = "tradewind-testnet-1"
)

// Client talks JSON-RPC to a chain node. One client is created per wallet
// and reused for the wallet's lifetime.
type Client struct {
	nodeURL    string
	httpClient *http.Client
}

// ClientConfig holds node client configuration.
type ClientConfig struct {
	NodeURL string
	Timeout time.Duration
}

// NewClient creates a node client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.NodeURL == "" {
		return nil, fmt.Errorf("node URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		nodeURL: cfg.NodeURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Call makes a JSON-RPC call to the node.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.nodeURL, bytes.NewReader(body))
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

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// BroadcastResult is the node's acceptance result. Raw is passed through to
// the caller unchanged.
type BroadcastResult struct {
	Hash string          `json:"hash"`
	Code int64           `json:"code"`
	Log  string          `json:"log"`
	Raw  json.RawMessage `json:"raw"`
}

// Accepted reports whether the node accepted the transaction.
func (r *BroadcastResult) Accepted() bool {
	return r != nil && r.Code == 0
}

// BroadcastHex submits a signed hex payload. With sync=true the call waits
// for the node's synchronous acceptance check; otherwise it returns on
// mempool admission. The flag changes nothing about sequence discipline.
func (c *Client) BroadcastHex(ctx context.Context, hexPayload string, sync bool) (*BroadcastResult, error) {
	method := "broadcast_tx_async"
	if sync {
		method = "broadcast_tx_sync"
	}

	raw, err := c.Call(ctx, method, []interface{}{hexPayload})
	if err != nil {
		return nil, err
	}

	result := &BroadcastResult{
		Hash: gjson.GetBytes(raw, "hash").String(),
		Code: gjson.GetBytes(raw, "code").Int(),
		Log:  gjson.GetBytes(raw, "log").String(),
		Raw:  raw,
	}

	if !result.Accepted() {
		return result, fmt.Errorf("node rejected transaction (code %d): %s", result.Code, result.Log)
	}
	return result, nil
}

// AccountSequence queries the node for an address's account number and
// current sequence.
func (c *Client) AccountSequence(ctx context.Context, address string) (accountNumber, sequence uint64, err error) {
	raw, err := c.Call(ctx, "account", []interface{}{address})
	if err != nil {
		return 0, 0, err
	}

	accountNumber = gjson.GetBytes(raw, "account_number").Uint()
	sequence = gjson.GetBytes(raw, "sequence").Uint()
	return accountNumber, sequence, nil
}

// NodeURLForEnvironment returns the default endpoint for an environment.
func NodeURLForEnvironment(testnet bool) string {
	if testnet {
		return TestnetNodeURL
	}
	return ProdNodeURL
}

// ChainIDForEnvironment returns the chain ID for an environment.
func ChainIDForEnvironment(testnet bool) string {
	if testnet {
		return TestnetChainID
	}
	return ProdChainID
}
