package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/base/tips/internal/tipstypes"
)

// BundleLookup is the narrow seam onto the Bundle Store's
// builder_getBundleByHash method, letting SendBundle decide whether a
// Created submission without a replacementUuid should merge into an
// existing live entry (spec §4.2's Testable Scenario 2) instead of
// always minting a fresh uuid.
type BundleLookup interface {
	GetBundleByHash(ctx context.Context, hash tipstypes.Hash) (id uuid.UUID, found bool, err error)
}

type bundleLookupRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type bundleLookupRPCResponse struct {
	Result *uuid.UUID `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPBundleLookupClient dials the Bundle Store's "builder" JSON-RPC
// namespace over HTTP, the same shape HTTPSimulationClient uses to
// dial the L2 node.
type HTTPBundleLookupClient struct {
	url        string
	httpClient *http.Client
}

func NewHTTPBundleLookupClient(url string) *HTTPBundleLookupClient {
	return &HTTPBundleLookupClient{url: url, httpClient: &http.Client{}}
}

func (c *HTTPBundleLookupClient) GetBundleByHash(ctx context.Context, hash tipstypes.Hash) (uuid.UUID, bool, error) {
	body, err := json.Marshal(bundleLookupRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "builder_getBundleByHash",
		Params:  []interface{}{hash},
	})
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("bundlelookup: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("bundlelookup: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("bundlelookup: %w", err)
	}
	defer resp.Body.Close()

	var out bundleLookupRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return uuid.Nil, false, fmt.Errorf("bundlelookup: decode response: %w", err)
	}
	if out.Error != nil || out.Result == nil {
		return uuid.Nil, false, nil
	}
	return *out.Result, true, nil
}
