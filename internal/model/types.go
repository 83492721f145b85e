// Package model holds the shared vocabulary of the gateway: the closed set of
// operations it can perform, the decision recorded for each request, and the
// surface a request arrived on. Dispatch is always by Operation value, never
// by raw string comparison scattered through handlers.
package model

import "sort"

// Operation identifies one gateway capability. The set is closed: anything
// not listed here is an unknown operation and must be rejected, never routed
// to a default handler.
type Operation string

const (
	OpCheck Operation = "check.run"

	OpFSRead  Operation = "fs.read"
	OpFSWrite Operation = "fs.write"
	OpFSList  Operation = "fs.list"
	OpFSStat  Operation = "fs.stat"

	OpExec Operation = "exec.run"
	OpGit  Operation = "git.run"

	OpSQLTables   Operation = "sql.tables"
	OpSQLDescribe Operation = "sql.describe"
	OpSQLSelect   Operation = "sql.select"
	OpSQLInsert   Operation = "sql.insert"

	OpCacheGet  Operation = "cache.get"
	OpCacheSet  Operation = "cache.set"
	OpCacheDel  Operation = "cache.del"
	OpCacheKeys Operation = "cache.keys"

	OpSecretSet      Operation = "secret.set"
	OpSecretGet      Operation = "secret.get"
	OpSecretList     Operation = "secret.list"
	OpSecretDelete   Operation = "secret.delete"
	OpSecretGenerate Operation = "secret.generate"

	OpFetch Operation = "web.fetch"
)

var operations = map[Operation]bool{
	OpCheck:          true,
	OpFSRead:         true,
	OpFSWrite:        true,
	OpFSList:         true,
	OpFSStat:         true,
	OpExec:           true,
	OpGit:            true,
	OpSQLTables:      true,
	OpSQLDescribe:    true,
	OpSQLSelect:      true,
	OpSQLInsert:      true,
	OpCacheGet:       true,
	OpCacheSet:       true,
	OpCacheDel:       true,
	OpCacheKeys:      true,
	OpSecretSet:      true,
	OpSecretGet:      true,
	OpSecretList:     true,
	OpSecretDelete:   true,
	OpSecretGenerate: true,
	OpFetch:          true,
}

// ParseOperation maps a string to a known Operation. ok is false for anything
// outside the closed set.
func ParseOperation(s string) (Operation, bool) {
	op := Operation(s)
	return op, operations[op]
}

// Operations returns the full operation set in sorted order.
func Operations() []Operation {
	out := make([]Operation, 0, len(operations))
	for op := range operations {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Decision is the recorded outcome of a gateway request.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// Source is the surface a request arrived on.
type Source string

const (
	SourceHTTP Source = "http"
	SourceMCP  Source = "mcp"
	SourceCLI  Source = "cli"
)
