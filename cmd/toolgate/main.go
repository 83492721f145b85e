// toolgate is a sandboxed tool gateway: allow-list validation in front of
// filesystem, exec, git, SQL, cache, secret, and fetch capabilities, exposed
// over HTTP and MCP.
package main

import "github.com/ppiankov/toolgate/internal/cli"

func main() {
	cli.Execute()
}
