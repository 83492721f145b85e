package model

import "testing"

func TestParseOperationKnown(t *testing.T) {
	op, ok := ParseOperation("fs.read")
	if !ok {
		t.Fatal("fs.read should be a known operation")
	}
	if op != OpFSRead {
		t.Errorf("expected %q, got %q", OpFSRead, op)
	}
}

func TestParseOperationUnknown(t *testing.T) {
	for _, s := range []string{"", "fs", "fs.readdir", "exec", "EXEC.RUN", "drop.table"} {
		if _, ok := ParseOperation(s); ok {
			t.Errorf("%q should not parse as a known operation", s)
		}
	}
}

func TestOperationsSortedAndComplete(t *testing.T) {
	ops := Operations()
	if len(ops) != len(operations) {
		t.Fatalf("expected %d operations, got %d", len(operations), len(ops))
	}
	for i := 1; i < len(ops); i++ {
		if ops[i-1] >= ops[i] {
			t.Errorf("operations not sorted: %q before %q", ops[i-1], ops[i])
		}
	}
	for _, op := range ops {
		if _, ok := ParseOperation(string(op)); !ok {
			t.Errorf("listed operation %q does not round-trip through ParseOperation", op)
		}
	}
}
