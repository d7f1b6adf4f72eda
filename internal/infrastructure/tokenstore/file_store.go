package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"campusconnect/internal/core/ports"
	"campusconnect/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
)

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// FileStore keeps the bearer token in a user-only file. Expired tokens are
// reported as absent so the client falls back to an anonymous connect.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ ports.TokenStore = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", fmt.Errorf("decode token file: %w", err)
	}
	if tf.AccessToken == "" {
		return "", nil
	}
	if !tf.ExpiresAt.IsZero() && !utils.Now().Before(tf.ExpiresAt) {
		return "", nil
	}
	return tf.AccessToken, nil
}

// SetToken stores token along with the expiry read from its exp claim, if any.
func (s *FileStore) SetToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	tf := tokenFile{AccessToken: token, ExpiresAt: ExpiresAt(token)}
	b, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// ExpiresAt returns the exp claim of a JWT without verifying its signature.
// Opaque tokens and tokens without exp yield the zero time.
func ExpiresAt(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
