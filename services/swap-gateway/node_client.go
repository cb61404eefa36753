package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// EscrowView mirrors the node's JSON representation of an escrow record.
type EscrowView struct {
	OrderID    string `json:"orderId"`
	SecretHash string `json:"secretHash"`
	Owner      string `json:"owner"`
	Taker      string `json:"taker"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	Timelock   int64  `json:"timelock"`
	CreatedAt  int64  `json:"createdAt"`
	Status     string `json:"status"`
}

// NodeEvent mirrors a single entry returned by htlc_listEvents.
type NodeEvent struct {
	Sequence uint64 `json:"sequence"`
	Event    struct {
		Type       string            `json:"type"`
		Attributes map[string]string `json:"attributes"`
	} `json:"event"`
}

// CreateEscrowRequest carries the parameters for htlc_create.
type CreateEscrowRequest struct {
	OrderID    string `json:"orderId"`
	SecretHash string `json:"secretHash"`
	Owner      string `json:"owner"`
	Taker      string `json:"taker"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	Duration   int64  `json:"duration"`
}

// RevealEscrowRequest carries the parameters for htlc_reveal.
type RevealEscrowRequest struct {
	OrderID string `json:"orderId"`
	Owner   string `json:"owner"`
	Secret  string `json:"secret"`
	Caller  string `json:"caller"`
}

// CancelEscrowRequest carries the parameters for htlc_cancel.
type CancelEscrowRequest struct {
	OrderID string `json:"orderId"`
	Owner   string `json:"owner"`
	Caller  string `json:"caller"`
}

// NodeClient is the subset of node RPC operations the gateway depends on.
type NodeClient interface {
	CreateEscrow(ctx context.Context, req CreateEscrowRequest) (*EscrowView, error)
	RevealEscrow(ctx context.Context, req RevealEscrowRequest) (string, error)
	CancelEscrow(ctx context.Context, req CancelEscrowRequest) (string, error)
	GetEscrow(ctx context.Context, orderID, owner string) (*EscrowView, error)
	ListEvents(ctx context.Context, prefix string, limit int) ([]NodeEvent, error)
	Balance(ctx context.Context, address, asset string) (string, error)
}

// NodeRPCError is a JSON-RPC error surfaced by the node, carrying the node's
// HTTP status so handlers can forward it.
type NodeRPCError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       string
}

func (e *NodeRPCError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("node rpc error %d: %s: %s", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("node rpc error %d: %s", e.Code, e.Message)
}

// RPCNodeClient talks to a swaplock node over JSON-RPC.
type RPCNodeClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	nextID    atomic.Int64
}

// NewRPCNodeClient builds a client for the node at baseURL. The auth token is
// attached to privileged calls as a bearer credential.
func NewRPCNodeClient(baseURL, authToken string) *RPCNodeClient {
	return &RPCNodeClient{
		baseURL:   baseURL,
		authToken: authToken,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type rpcEnvelope struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type rpcReply struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    string `json:"data"`
	} `json:"error"`
}

func (c *RPCNodeClient) call(ctx context.Context, method string, params interface{}, privileged bool, out interface{}) error {
	env := rpcEnvelope{JSONRPC: "2.0", Method: method, ID: c.nextID.Add(1)}
	if params != nil {
		env.Params = []interface{}{params}
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if privileged {
		if c.authToken == "" {
			return fmt.Errorf("method %s requires a node auth token", method)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	var reply rpcReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return fmt.Errorf("decode node response (status %d): %w", resp.StatusCode, err)
	}
	if reply.Error != nil {
		return &NodeRPCError{
			HTTPStatus: resp.StatusCode,
			Code:       reply.Error.Code,
			Message:    reply.Error.Message,
			Data:       reply.Error.Data,
		}
	}
	if out != nil {
		if err := json.Unmarshal(reply.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

func (c *RPCNodeClient) CreateEscrow(ctx context.Context, req CreateEscrowRequest) (*EscrowView, error) {
	var view EscrowView
	if err := c.call(ctx, "htlc_create", req, true, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *RPCNodeClient) RevealEscrow(ctx context.Context, req RevealEscrowRequest) (string, error) {
	var result struct {
		Amount string `json:"amount"`
	}
	if err := c.call(ctx, "htlc_reveal", req, true, &result); err != nil {
		return "", err
	}
	return result.Amount, nil
}

func (c *RPCNodeClient) CancelEscrow(ctx context.Context, req CancelEscrowRequest) (string, error) {
	var result struct {
		Amount string `json:"amount"`
	}
	if err := c.call(ctx, "htlc_cancel", req, true, &result); err != nil {
		return "", err
	}
	return result.Amount, nil
}

func (c *RPCNodeClient) GetEscrow(ctx context.Context, orderID, owner string) (*EscrowView, error) {
	params := map[string]string{"orderId": orderID, "owner": owner}
	var view EscrowView
	if err := c.call(ctx, "htlc_get", params, false, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *RPCNodeClient) ListEvents(ctx context.Context, prefix string, limit int) ([]NodeEvent, error) {
	params := map[string]interface{}{"prefix": prefix, "limit": limit}
	var entries []NodeEvent
	if err := c.call(ctx, "htlc_listEvents", params, false, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *RPCNodeClient) Balance(ctx context.Context, address, asset string) (string, error) {
	params := map[string]string{"address": address, "asset": asset}
	var result struct {
		Balance string `json:"balance"`
	}
	if err := c.call(ctx, "token_balance", params, false, &result); err != nil {
		return "", err
	}
	return result.Balance, nil
}
