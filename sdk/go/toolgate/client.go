package toolgate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to one toolgate gateway. Safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: "http://127.0.0.1:8085",
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// do posts the request body to path and decodes the response into out. A
// non-2xx status decodes the error envelope into an *APIError.
func (c *Client) do(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("toolgate: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("toolgate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("toolgate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Error APIError `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return fmt.Errorf("toolgate: status %d with unreadable body", resp.StatusCode)
		}
		apiErr := envelope.Error
		apiErr.Status = resp.StatusCode
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("toolgate: decode response: %w", err)
	}
	return nil
}

// PolicyHash returns the hash of the policy currently loaded on the gateway.
func (c *Client) PolicyHash(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/policy/hash", nil)
	if err != nil {
		return "", fmt.Errorf("toolgate: build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("toolgate: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		PolicyHash string `json:"policy_hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("toolgate: decode response: %w", err)
	}
	return out.PolicyHash, nil
}

// Check runs one validator without executing anything. check is one of
// "path", "command", "identifier", "schema".
func (c *Client) Check(ctx context.Context, check, value string) (*CheckResult, error) {
	var out CheckResult
	err := c.do(ctx, "/v1/check", map[string]string{"check": check, "value": value}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FSRead reads a file inside the sandbox roots.
func (c *Client) FSRead(ctx context.Context, path string, maxBytes int64) (*ReadResult, error) {
	var out ReadResult
	err := c.do(ctx, "/v1/fs/read", map[string]any{"path": path, "max_bytes": maxBytes}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FSWrite writes a file inside the sandbox roots.
func (c *Client) FSWrite(ctx context.Context, path, content string) (*WriteResult, error) {
	var out WriteResult
	err := c.do(ctx, "/v1/fs/write", map[string]string{"path": path, "content": content}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FSList lists a directory inside the sandbox roots.
func (c *Client) FSList(ctx context.Context, path string, maxEntries int) (*ListResult, error) {
	var out ListResult
	err := c.do(ctx, "/v1/fs/list", map[string]any{"path": path, "max_entries": maxEntries}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FSStat stats a path inside the sandbox roots.
func (c *Client) FSStat(ctx context.Context, path string) (*StatResult, error) {
	var out StatResult
	err := c.do(ctx, "/v1/fs/stat", map[string]string{"path": path}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Exec runs an allow-listed command. Shell metacharacters in the command are
// inert; nothing runs in a shell.
func (c *Client) Exec(ctx context.Context, command string, timeoutSeconds int, stdin string) (*ExecResult, error) {
	var out ExecResult
	err := c.do(ctx, "/v1/exec", map[string]any{
		"command":         command,
		"timeout_seconds": timeoutSeconds,
		"stdin":           stdin,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Git runs an allow-listed git verb in a repository inside the sandbox roots.
func (c *Client) Git(ctx context.Context, repo, verb string, args []string, timeoutSeconds int) (*ExecResult, error) {
	var out ExecResult
	err := c.do(ctx, "/v1/git", map[string]any{
		"repo":            repo,
		"verb":            verb,
		"args":            args,
		"timeout_seconds": timeoutSeconds,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SQLTables lists tables in a schema.
func (c *Client) SQLTables(ctx context.Context, schema string) ([]string, error) {
	var out struct {
		Tables []string `json:"tables"`
	}
	err := c.do(ctx, "/v1/sql/tables", map[string]string{"schema": schema}, &out)
	if err != nil {
		return nil, err
	}
	return out.Tables, nil
}

// SQLDescribe returns the columns of a table.
func (c *Client) SQLDescribe(ctx context.Context, schema, table string) ([]Column, error) {
	var out struct {
		Columns []Column `json:"columns"`
	}
	err := c.do(ctx, "/v1/sql/describe", map[string]string{"schema": schema, "table": table}, &out)
	if err != nil {
		return nil, err
	}
	return out.Columns, nil
}

// SQLSelect selects rows with equality filters. Filter values are always
// parameterized on the gateway.
func (c *Client) SQLSelect(ctx context.Context, q SelectQuery) (*SelectResult, error) {
	var out SelectResult
	err := c.do(ctx, "/v1/sql/select", q, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SQLInsert inserts one row.
func (c *Client) SQLInsert(ctx context.Context, schema, table string, values map[string]any) (int64, error) {
	var out struct {
		RowsAffected int64 `json:"rows_affected"`
	}
	err := c.do(ctx, "/v1/sql/insert", map[string]any{
		"schema": schema,
		"table":  table,
		"values": values,
	}, &out)
	if err != nil {
		return 0, err
	}
	return out.RowsAffected, nil
}

// CacheGet fetches a cache value by key.
func (c *Client) CacheGet(ctx context.Context, key string) (*CacheValue, error) {
	var out CacheValue
	err := c.do(ctx, "/v1/cache/get", map[string]string{"key": key}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CacheSet stores a cache value. TTL zero means the policy maximum.
func (c *Client) CacheSet(ctx context.Context, key, value string, ttlSeconds int) error {
	return c.do(ctx, "/v1/cache/set", map[string]any{
		"key":         key,
		"value":       value,
		"ttl_seconds": ttlSeconds,
	}, nil)
}

// CacheDel deletes a cache key. Returns whether the key existed.
func (c *Client) CacheDel(ctx context.Context, key string) (bool, error) {
	var out struct {
		Deleted bool `json:"deleted"`
	}
	err := c.do(ctx, "/v1/cache/del", map[string]string{"key": key}, &out)
	if err != nil {
		return false, err
	}
	return out.Deleted, nil
}

// CacheKeys lists keys by prefix.
func (c *Client) CacheKeys(ctx context.Context, prefix string, maxKeys int) (*CacheKeys, error) {
	var out CacheKeys
	err := c.do(ctx, "/v1/cache/keys", map[string]any{"prefix": prefix, "max_keys": maxKeys}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SecretSet stores a secret encrypted at rest.
func (c *Client) SecretSet(ctx context.Context, name, value string) error {
	return c.do(ctx, "/v1/secrets/set", map[string]string{"name": name, "value": value}, nil)
}

// SecretGet retrieves a secret value.
func (c *Client) SecretGet(ctx context.Context, name string) (string, error) {
	var out struct {
		Value string `json:"value"`
	}
	err := c.do(ctx, "/v1/secrets/get", map[string]string{"name": name}, &out)
	if err != nil {
		return "", err
	}
	return out.Value, nil
}

// SecretList lists secret names. Values are never listed.
func (c *Client) SecretList(ctx context.Context) ([]string, error) {
	var out struct {
		Names []string `json:"names"`
	}
	err := c.do(ctx, "/v1/secrets/list", map[string]string{}, &out)
	if err != nil {
		return nil, err
	}
	return out.Names, nil
}

// SecretDelete deletes a secret. Returns whether it existed.
func (c *Client) SecretDelete(ctx context.Context, name string) (bool, error) {
	var out struct {
		Deleted bool `json:"deleted"`
	}
	err := c.do(ctx, "/v1/secrets/delete", map[string]string{"name": name}, &out)
	if err != nil {
		return false, err
	}
	return out.Deleted, nil
}

// SecretGenerate generates and stores a random secret. The returned length
// is the only disclosure; the value never leaves the gateway through this
// endpoint.
func (c *Client) SecretGenerate(ctx context.Context, name string, length int) (int, error) {
	var out struct {
		Length int `json:"length"`
	}
	err := c.do(ctx, "/v1/secrets/generate", map[string]any{"name": name, "length": length}, &out)
	if err != nil {
		return 0, err
	}
	return out.Length, nil
}

// Fetch performs a guarded HTTP request through the gateway's egress gate.
func (c *Client) Fetch(ctx context.Context, url, method string, maxBytes int64, timeoutSeconds int) (*FetchResult, error) {
	var out FetchResult
	err := c.do(ctx, "/v1/fetch", map[string]any{
		"url":             url,
		"method":          method,
		"max_bytes":       maxBytes,
		"timeout_seconds": timeoutSeconds,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
