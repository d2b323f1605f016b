package gdrive

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"
	"golang.org/x/oauth2"
)

const tokenBucket = "oauth_tokens"

// TokenStore caches OAuth tokens in a local bbolt file so the interactive
// authorization only happens once per scope set.
type TokenStore struct {
	db *bbolt.DB
}

// NewTokenStore opens (or creates) the token database.
func NewTokenStore(path string) (*TokenStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening token db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(tokenBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token bucket: %w", err)
	}

	return &TokenStore{db: db}, nil
}

// scopesKey is a stable key independent of scope order and duplicates.
func scopesKey(scopes []string) string {
	v := append([]string(nil), scopes...)
	sort.Strings(v)
	v = unique(v)
	sum := sha256.Sum256([]byte(strings.Join(v, " ")))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func unique(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// Load returns the cached token for a scope set, or nil when absent.
func (s *TokenStore) Load(scopes []string) (*oauth2.Token, error) {
	var token *oauth2.Token
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(tokenBucket)).Get([]byte(scopesKey(scopes)))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &token)
	})
	if err != nil {
		return nil, fmt.Errorf("loading token: %w", err)
	}
	return token, nil
}

// Save stores or replaces the token for a scope set.
func (s *TokenStore) Save(scopes []string, token *oauth2.Token) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(token)
		if err != nil {
			return fmt.Errorf("marshaling token: %w", err)
		}
		return tx.Bucket([]byte(tokenBucket)).Put([]byte(scopesKey(scopes)), data)
	})
}

// Close closes the underlying database.
func (s *TokenStore) Close() error {
	return s.db.Close()
}

// persistingSource saves refreshed tokens back to the store so a restart
// skips the browser flow.
type persistingSource struct {
	src    oauth2.TokenSource
	store  *TokenStore
	scopes []string
	last   string // access token last written
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	token, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	if token.AccessToken != p.last {
		if err := p.store.Save(p.scopes, token); err != nil {
			return nil, fmt.Errorf("persisting refreshed token: %w", err)
		}
		p.last = token.AccessToken
	}
	return token, nil
}
