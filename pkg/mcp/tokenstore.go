package mcp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/nacl/secretbox"
)

// EnvTokenEncryptionKey holds the passphrase protecting stored OAuth tokens.
const EnvTokenEncryptionKey = "MCP_TOKEN_ENCRYPTION_KEY"

// Token is an OAuth credential pair for one (user, server).
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Expired reports whether the access token is past its expiry. A zero
// expiry means the token never expires.
func (t *Token) Expired() bool {
	return !t.Expiry.IsZero() && time.Now().After(t.Expiry)
}

// TokenExpiry extracts the exp claim from a JWT access token. Opaque tokens
// return the zero time.
func TokenExpiry(accessToken string) time.Time {
	parsed, err := jwt.ParseString(accessToken,
		jwt.WithVerify(false),
		jwt.WithValidate(false),
	)
	if err != nil {
		return time.Time{}
	}
	return parsed.Expiration()
}

// TokenStore persists OAuth tokens keyed by (user_id, server_id).
type TokenStore interface {
	Get(ctx context.Context, userID, serverID string) (*Token, error)
	Put(ctx context.Context, userID, serverID string, token *Token) error
	Delete(ctx context.Context, userID, serverID string) error
}

// MemoryTokenStore keeps tokens in process memory. Used in tests and when
// no database is configured.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]Token)}
}

func tokenKey(userID, serverID string) string {
	return userID + ":" + serverID
}

func (s *MemoryTokenStore) Get(_ context.Context, userID, serverID string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[tokenKey(userID, serverID)]
	if !ok {
		return nil, nil
	}
	return &token, nil
}

func (s *MemoryTokenStore) Put(_ context.Context, userID, serverID string, token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tokenKey(userID, serverID)] = *token
	return nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, userID, serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, tokenKey(userID, serverID))
	return nil
}

// tokenCipher seals and opens token values with nacl secretbox. The key is
// the SHA-256 of the configured passphrase.
type tokenCipher struct {
	key [32]byte
}

func newTokenCipher() (*tokenCipher, error) {
	passphrase := os.Getenv(EnvTokenEncryptionKey)
	if passphrase == "" {
		return nil, fmt.Errorf("%s must be set to store OAuth tokens", EnvTokenEncryptionKey)
	}
	return &tokenCipher{key: sha256.Sum256([]byte(passphrase))}, nil
}

func (c *tokenCipher) seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *tokenCipher) open(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode token ciphertext: %w", err)
	}
	if len(sealed) < 24 {
		return "", fmt.Errorf("token ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, &c.key)
	if !ok {
		return "", fmt.Errorf("failed to decrypt token (wrong %s?)", EnvTokenEncryptionKey)
	}
	return string(plaintext), nil
}

// PostgresTokenStore persists encrypted tokens in the mcp_tokens table.
type PostgresTokenStore struct {
	db     *sql.DB
	cipher *tokenCipher
}

const tokenTableDDL = `
CREATE TABLE IF NOT EXISTS mcp_tokens (
	user_id       TEXT NOT NULL,
	server_id     TEXT NOT NULL,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	expiry        TIMESTAMPTZ,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, server_id)
)`

func NewPostgresTokenStore(ctx context.Context, dsn string) (*PostgresTokenStore, error) {
	cipher, err := newTokenCipher()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to token store: %w", err)
	}
	if _, err := db.ExecContext(ctx, tokenTableDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure token table: %w", err)
	}

	return &PostgresTokenStore{db: db, cipher: cipher}, nil
}

func (s *PostgresTokenStore) Get(ctx context.Context, userID, serverID string) (*Token, error) {
	var accessEnc, refreshEnc string
	var expiry sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expiry FROM mcp_tokens WHERE user_id = $1 AND server_id = $2`,
		userID, serverID,
	).Scan(&accessEnc, &refreshEnc, &expiry)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	access, err := s.cipher.open(accessEnc)
	if err != nil {
		return nil, err
	}
	refresh, err := s.cipher.open(refreshEnc)
	if err != nil {
		return nil, err
	}

	token := &Token{AccessToken: access, RefreshToken: refresh}
	if expiry.Valid {
		token.Expiry = expiry.Time
	}
	return token, nil
}

func (s *PostgresTokenStore) Put(ctx context.Context, userID, serverID string, token *Token) error {
	accessEnc, err := s.cipher.seal(token.AccessToken)
	if err != nil {
		return err
	}
	refreshEnc, err := s.cipher.seal(token.RefreshToken)
	if err != nil {
		return err
	}

	var expiry sql.NullTime
	if !token.Expiry.IsZero() {
		expiry = sql.NullTime{Time: token.Expiry, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO mcp_tokens (user_id, server_id, access_token, refresh_token, expiry, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (user_id, server_id)
		 DO UPDATE SET access_token = $3, refresh_token = $4, expiry = $5, updated_at = now()`,
		userID, serverID, accessEnc, refreshEnc, expiry,
	)
	if err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

func (s *PostgresTokenStore) Delete(ctx context.Context, userID, serverID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM mcp_tokens WHERE user_id = $1 AND server_id = $2`,
		userID, serverID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (s *PostgresTokenStore) Close() error { return s.db.Close() }
