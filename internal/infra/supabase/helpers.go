package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// ============================================================
// HTTP helpers for GET, POST, PATCH, RPC
// ============================================================

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	return c.doRequest(ctx, http.MethodGet, path, nil, "")
}

func (c *Client) doPost(ctx context.Context, table string, data map[string]any) ([]byte, error) {
	return c.doRequest(ctx, http.MethodPost, table, data, "return=representation")
}

// doPatch applies a filtered PATCH and returns the rows it matched.
// An empty array means the filter matched nothing.
func (c *Client) doPatch(ctx context.Context, path string, data map[string]any) ([]byte, error) {
	return c.doRequest(ctx, http.MethodPatch, path, data, "return=representation")
}

func (c *Client) doRPC(ctx context.Context, fn string, params map[string]any) ([]byte, error) {
	return c.doRequest(ctx, http.MethodPost, "rpc/"+fn, params, "")
}

// decodeRows unmarshals a PostgREST array response.
func decodeRows[T any](body []byte) ([]T, error) {
	var rows []T
	if len(body) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

// escape quotes a value for a PostgREST eq filter.
func escape(v string) string {
	return url.QueryEscape(v)
}

// Ping issues a cheap read so health probes exercise the same path as real calls.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doGet(ctx, "leads?select=id&limit=1")
	return err
}
