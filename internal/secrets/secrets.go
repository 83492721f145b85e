// Package secrets is the encrypted-at-rest secret store. Values are sealed
// with XChaCha20-Poly1305 under a key held outside the database; the database
// only ever sees nonce and ciphertext. The secret name is bound into the AEAD
// as additional data, so a ciphertext copied onto another row fails to open.
package secrets

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sethvargo/go-password/password"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/ppiankov/toolgate/internal/guard"
)

// ErrNotFound marks a secret name that passed validation but is not stored.
var ErrNotFound = errors.New("secrets: not found")

// MaxNameLen caps secret name length.
const MaxNameLen = 128

// namePattern is the only grammar a secret name may have.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

const schema = `
CREATE TABLE IF NOT EXISTS secrets (
	name       TEXT PRIMARY KEY,
	nonce      BLOB NOT NULL,
	ciphertext BLOB NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Store holds the database handle and the AEAD. Both are fixed at startup;
// key rotation is a restart.
type Store struct {
	db   *sql.DB
	aead cipher.AEAD
}

// NewStore binds a store to db using the given 32-byte key.
func NewStore(db *sql.DB, key []byte) (*Store, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: bad key: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("secrets: init schema: %w", err)
	}
	return &Store{db: db, aead: aead}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Service wraps the store with the current policy caps.
type Service struct {
	Store  *Store
	Limits guard.Limits
}

// ValidateName accepts name only if it matches the secret name grammar.
func ValidateName(name string) *guard.Rejection {
	if name == "" {
		return guard.Reject(guard.KindMalformedSyntax, "secret name is empty")
	}
	if len(name) > MaxNameLen {
		return guard.RejectCap(guard.KindMalformedSyntax, MaxNameLen,
			"secret name exceeds %d characters", MaxNameLen)
	}
	if !namePattern.MatchString(name) {
		return guard.Reject(guard.KindMalformedSyntax, "secret name must match [A-Za-z0-9_.-]+")
	}
	return nil
}

// Set stores (or replaces) one secret.
func (s Service) Set(ctx context.Context, name, value string) error {
	if rej := ValidateName(name); rej != nil {
		return rej
	}
	if value == "" {
		return guard.Reject(guard.KindMalformedSyntax, "secret value is empty")
	}
	if max := s.Limits.MaxValueBytes; max > 0 && int64(len(value)) > max {
		return guard.RejectCap(guard.KindPayloadTooLarge, max,
			"value is %d bytes, the maximum is %d", len(value), max)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("secrets: nonce: %w", err)
	}
	ciphertext := s.Store.aead.Seal(nil, nonce, []byte(value), []byte(name))

	_, err := s.Store.db.ExecContext(ctx, `
		INSERT INTO secrets (name, nonce, ciphertext, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET nonce = excluded.nonce,
			ciphertext = excluded.ciphertext, updated_at = excluded.updated_at`,
		name, nonce, ciphertext, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("secrets: store %s: %w", name, err)
	}
	return nil
}

// Get opens one secret. A validated name with no row is ErrNotFound.
func (s Service) Get(ctx context.Context, name string) (string, error) {
	if rej := ValidateName(name); rej != nil {
		return "", rej
	}

	var nonce, ciphertext []byte
	err := s.Store.db.QueryRowContext(ctx,
		`SELECT nonce, ciphertext FROM secrets WHERE name = ?`, name).
		Scan(&nonce, &ciphertext)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("secrets: load %s: %w", name, err)
	}

	plaintext, err := s.Store.aead.Open(nil, nonce, ciphertext, []byte(name))
	if err != nil {
		return "", fmt.Errorf("secrets: open %s: %w", name, err)
	}
	return string(plaintext), nil
}

// List returns the stored secret names sorted. Names only; a listing never
// exposes values.
func (s Service) List(ctx context.Context) ([]string, error) {
	rows, err := s.Store.db.QueryContext(ctx, `SELECT name FROM secrets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("secrets: list: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("secrets: scan name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes one secret and reports whether it existed.
func (s Service) Delete(ctx context.Context, name string) (bool, error) {
	if rej := ValidateName(name); rej != nil {
		return false, rej
	}
	res, err := s.Store.db.ExecContext(ctx, `DELETE FROM secrets WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("secrets: delete %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("secrets: rows affected: %w", err)
	}
	return n > 0, nil
}

// GenerateLengthMax bounds generated secret length.
const (
	GenerateLengthDefault = 32
	GenerateLengthMin     = 8
	GenerateLengthMax     = 128
)

// Generate creates a random secret of the given length (zero means the
// default), stores it under name, and returns it.
func (s Service) Generate(ctx context.Context, name string, length int) (string, error) {
	if rej := ValidateName(name); rej != nil {
		return "", rej
	}
	if length == 0 {
		length = GenerateLengthDefault
	}
	if length < GenerateLengthMin || length > GenerateLengthMax {
		return "", guard.RejectCap(guard.KindMalformedSyntax, GenerateLengthMax,
			"length must be between %d and %d", GenerateLengthMin, GenerateLengthMax)
	}

	value, err := password.Generate(length, length/4, 0, false, true)
	if err != nil {
		return "", fmt.Errorf("secrets: generate: %w", err)
	}
	if err := s.Set(ctx, name, value); err != nil {
		return "", err
	}
	return value, nil
}

// LoadKey reads a hex-encoded 32-byte key from path.
func LoadKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secrets: read key file: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("secrets: decode key file %s: %w", path, err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("secrets: key file %s holds %d bytes, want %d", path, len(key), chacha20poly1305.KeySize)
	}
	return key, nil
}

// WriteKeyFile generates a fresh key and writes it hex-encoded to path with
// owner-only permissions. Refuses to overwrite an existing file: losing a
// key orphans every ciphertext sealed under it.
func WriteKeyFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("secrets: key file %s already exists", path)
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("secrets: generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("secrets: create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		return fmt.Errorf("secrets: write key file: %w", err)
	}
	return nil
}
