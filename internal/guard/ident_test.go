package guard

import (
	"strings"
	"testing"
)

var testIdentPolicy = IdentPolicy{
	ReservedPrefixes: []string{"pg_", "sqlite_"},
	Schemas:          []string{"main", "temp"},
}

func TestValidateIdentifierAccepted(t *testing.T) {
	got, rej := ValidateIdentifier("user_table_1", testIdentPolicy)
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if got != "user_table_1" {
		t.Errorf("expected identifier returned unchanged, got %q", got)
	}
}

func TestValidateIdentifierGrammar(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		kind Kind
	}{
		{"injection", "users; DROP TABLE users--", KindMalformedSyntax},
		{"empty", "", KindMalformedSyntax},
		{"leading digit", "1users", KindMalformedSyntax},
		{"hyphen", "user-table", KindMalformedSyntax},
		{"space", "user table", KindMalformedSyntax},
		{"quote", `users"`, KindMalformedSyntax},
		{"dot", "schema.table", KindMalformedSyntax},
		{"unicode", "tabela_ção", KindMalformedSyntax},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, rej := ValidateIdentifier(c.raw, testIdentPolicy)
			if rej == nil {
				t.Fatalf("%q should be rejected", c.raw)
			}
			if rej.Kind != c.kind {
				t.Errorf("%q: expected %s, got %s", c.raw, c.kind, rej.Kind)
			}
		})
	}
}

func TestValidateIdentifierReservedPrefix(t *testing.T) {
	for _, raw := range []string{"pg_stat", "pg_catalog_x", "PG_CLASS", "sqlite_master", "SQLite_seq"} {
		_, rej := ValidateIdentifier(raw, testIdentPolicy)
		if rej == nil || rej.Kind != KindSystemReserved {
			t.Errorf("%q: expected SystemReserved, got %v", raw, rej)
		}
	}
}

func TestValidateIdentifierLength(t *testing.T) {
	ok := strings.Repeat("a", 63)
	if _, rej := ValidateIdentifier(ok, testIdentPolicy); rej != nil {
		t.Errorf("63-char identifier should pass: %v", rej)
	}

	long := strings.Repeat("a", 64)
	_, rej := ValidateIdentifier(long, testIdentPolicy)
	if rej == nil || rej.Kind != KindMalformedSyntax {
		t.Fatalf("64-char identifier should fail: %v", rej)
	}
	if rej.Cap != 63 {
		t.Errorf("rejection should disclose the cap 63, got %d", rej.Cap)
	}
}

func TestValidateIdentifierCustomMaxLen(t *testing.T) {
	pol := IdentPolicy{MaxLen: 8}
	if _, rej := ValidateIdentifier("short", pol); rej != nil {
		t.Errorf("unexpected rejection: %v", rej)
	}
	if _, rej := ValidateIdentifier("nine_char", pol); rej == nil {
		t.Error("identifier over the custom cap should fail")
	}
}

func TestValidateSchemaName(t *testing.T) {
	got, rej := ValidateSchemaName("main", testIdentPolicy)
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if got != "main" {
		t.Errorf("expected main, got %q", got)
	}

	_, rej = ValidateSchemaName("public", testIdentPolicy)
	if rej == nil || rej.Kind != KindSchemaNotAllowed {
		t.Errorf("schema outside the allow-list: expected SchemaNotAllowed, got %v", rej)
	}

	// Grammar and reserved-prefix checks run before membership.
	_, rej = ValidateSchemaName("pg_catalog", testIdentPolicy)
	if rej == nil || rej.Kind != KindSystemReserved {
		t.Errorf("expected SystemReserved, got %v", rej)
	}
	_, rej = ValidateSchemaName("bad schema", testIdentPolicy)
	if rej == nil || rej.Kind != KindMalformedSyntax {
		t.Errorf("expected MalformedSyntax, got %v", rej)
	}
}

func TestValidateIdentifierIdempotent(t *testing.T) {
	for _, raw := range []string{"user_table_1", "pg_stat", "users; DROP"} {
		v1, r1 := ValidateIdentifier(raw, testIdentPolicy)
		v2, r2 := ValidateIdentifier(raw, testIdentPolicy)
		if v1 != v2 || (r1 == nil) != (r2 == nil) {
			t.Errorf("%q: outcome differs across calls", raw)
		}
	}
}
