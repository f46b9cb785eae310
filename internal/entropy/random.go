// Package entropy picks session seeds. When a random.org key is configured
// the seed comes from its JSON-RPC API; otherwise, or when the API fails,
// it comes from crypto/rand.
package entropy

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultEndpoint = "https://api.random.org/json-rpc/4/invoke"

// Client fetches random words from random.org.
type Client struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewClient creates a random.org client. Returns nil if apiKey is empty.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled returns true if the client has a valid API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Seed returns a 64-bit session seed. It never fails: API errors are
// logged and answered from crypto/rand.
func (c *Client) Seed(ctx context.Context) uint64 {
	if c.Enabled() {
		seed, err := c.fetch(ctx)
		if err == nil {
			slog.Debug("session seed from random.org")
			return seed
		}
		slog.Warn("random.org unavailable, using local entropy", "error", err)
	}
	return CryptoSeed()
}

// fetch asks for four 16-bit integers and packs them into one word.
func (c *Client) fetch(ctx context.Context) (uint64, error) {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateIntegers",
		"params": map[string]any{
			"apiKey": c.apiKey,
			"n":      4,
			"min":    0,
			"max":    0xffff,
		},
		"id": 1,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch: status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}

	var result struct {
		Result struct {
			Random struct {
				Data []uint16 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, fmt.Errorf("parse: %w", err)
	}
	if result.Error != nil {
		return 0, fmt.Errorf("api: %s", result.Error.Message)
	}
	data := result.Result.Random.Data
	if len(data) != 4 {
		return 0, fmt.Errorf("api: got %d integers, want 4", len(data))
	}

	var seed uint64
	for _, d := range data {
		seed = seed<<16 | uint64(d)
	}
	return seed, nil
}

// CryptoSeed returns a seed from crypto/rand.
func CryptoSeed() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(buf[:])
}
