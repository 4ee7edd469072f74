package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

type rpcRequest struct {
	Jsonrpc string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	ID     int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type httpStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *httpStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("rpc http status %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("rpc http status %s", e.Status)
}

// nodeClient speaks JSON-RPC to one bitcoind over HTTP with basic auth. The
// auth header is precomputed from user:pass at construction.
type nodeClient struct {
	url        string
	authHeader string
	client     *http.Client
	metrics    *genMetrics

	idMu   sync.Mutex
	nextID int
}

func newNodeClient(rpcURL, user, pass string, metrics *genMetrics) *nodeClient {
	// Shared transport so calls reuse connections instead of paying a
	// TCP handshake per request.
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		IdleConnTimeout:       60 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	c := &nodeClient{
		url:     rpcURL,
		metrics: metrics,
		client: &http.Client{
			Timeout:   60 * time.Second,
			Transport: transport,
		},
		nextID: 1,
	}
	if user != "" || pass != "" {
		c.authHeader = "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
	}
	return c
}

func (c *nodeClient) endpointLabel() string {
	raw := strings.TrimSpace(c.url)
	if raw == "" {
		return "(unknown)"
	}
	u, err := url.Parse(raw)
	if err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}

func (c *nodeClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	err := c.performCall(ctx, method, params, out)
	if err != nil && c.metrics != nil {
		c.metrics.rpcErrors.Add(1)
	}
	return err
}

func (c *nodeClient) performCall(ctx context.Context, method string, params interface{}, out interface{}) error {
	c.idMu.Lock()
	id := c.nextID
	c.nextID++
	c.idMu.Unlock()

	reqObj := rpcRequest{
		Jsonrpc: "1.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}

	body, err := fastJSONMarshal(reqObj)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		// Some daemons carry a useful JSON-RPC error alongside a non-200
		// status; surface that instead of the bare HTTP status.
		var rpcResp rpcResponse
		if err := fastJSONUnmarshal(data, &rpcResp); err == nil && rpcResp.Error != nil {
			return rpcResp.Error
		}
		errBody := string(bytes.TrimSpace(data))
		return &httpStatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: errBody}
	}

	if len(data) == 0 {
		return fmt.Errorf("rpc empty response body")
	}

	var rpcResp rpcResponse
	if err := fastJSONUnmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if out == nil {
		return nil
	}
	return fastJSONUnmarshal(rpcResp.Result, out)
}

// GetBlockTemplate fetches a segwit block template and returns the raw JSON.
func (c *nodeClient) GetBlockTemplate(ctx context.Context) (json.RawMessage, error) {
	var tpl json.RawMessage
	params := []interface{}{map[string]interface{}{"rules": []string{"segwit"}}}
	if err := c.call(ctx, "getblocktemplate", params, &tpl); err != nil {
		return nil, err
	}
	if len(tpl) == 0 || bytes.Equal(bytes.TrimSpace(tpl), []byte("null")) {
		return nil, errors.New("empty block template")
	}
	return tpl, nil
}

// GetBestBlockHash returns the hash of the chain tip.
func (c *nodeClient) GetBestBlockHash(ctx context.Context) (string, error) {
	var hash string
	err := c.call(ctx, "getbestblockhash", nil, &hash)
	return hash, err
}

// GetBlockCount returns the current chain height.
func (c *nodeClient) GetBlockCount(ctx context.Context) (int64, error) {
	var height int64
	err := c.call(ctx, "getblockcount", nil, &height)
	return height, err
}

// GetBlockHash returns the hash of the block at the given height.
func (c *nodeClient) GetBlockHash(ctx context.Context, height int64) (string, error) {
	var hash string
	err := c.call(ctx, "getblockhash", []interface{}{height}, &hash)
	return hash, err
}

// SubmitBlock submits a serialized block. bitcoind answers null on success
// and a reject reason string otherwise.
func (c *nodeClient) SubmitBlock(ctx context.Context, blockHex string) error {
	var result *string
	if err := c.call(ctx, "submitblock", []interface{}{blockHex}, &result); err != nil {
		return err
	}
	if result != nil && *result != "" {
		return fmt.Errorf("block rejected: %s", *result)
	}
	return nil
}

// ValidateAddress asks the node whether an address is valid.
func (c *nodeClient) ValidateAddress(ctx context.Context, addr string) (bool, error) {
	var res struct {
		IsValid bool `json:"isvalid"`
	}
	if err := c.call(ctx, "validateaddress", []interface{}{addr}, &res); err != nil {
		return false, err
	}
	return res.IsValid, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
