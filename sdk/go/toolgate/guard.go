package toolgate

import (
	"context"
	"errors"
)

// Guard pre-validates values against the gateway's policy without executing
// anything, so a caller can gate its own local actions on the same rules the
// gateway enforces.
type Guard struct {
	c *Client
}

// Guard returns a validation-only view of the client.
func (c *Client) Guard() *Guard { return &Guard{c: c} }

// check returns nil when the value passes, the *APIError when the policy
// refuses it, and a transport error otherwise.
func (g *Guard) check(ctx context.Context, kind, value string) error {
	_, err := g.c.Check(ctx, kind, value)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return err
}

// Path validates a filesystem path against the sandbox roots.
func (g *Guard) Path(ctx context.Context, path string) error {
	return g.check(ctx, "path", path)
}

// Command validates a command line against the allow-list and blocklist.
func (g *Guard) Command(ctx context.Context, command string) error {
	return g.check(ctx, "command", command)
}

// Identifier validates a SQL identifier.
func (g *Guard) Identifier(ctx context.Context, name string) error {
	return g.check(ctx, "identifier", name)
}

// Schema validates a SQL schema name.
func (g *Guard) Schema(ctx context.Context, name string) error {
	return g.check(ctx, "schema", name)
}
