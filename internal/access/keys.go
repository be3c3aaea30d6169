package access

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"
)

// DefaultKeyTTL is how long a key stays current before it is rotated.
const DefaultKeyTTL = 2 * time.Minute

const keyBytes = 32

// Key is a content access key handed to a client.
type Key struct {
	Value     string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ownerKeys struct {
	current        string
	currentIssued  time.Time
	previous       string
	previousIssued time.Time
}

// KeyStore issues and validates per-owner content access keys. A key is
// current for one TTL, then previous for one more; it validates in both
// states.
type KeyStore struct {
	ttl    time.Duration
	now    func() time.Time
	random io.Reader

	mu   sync.Mutex
	keys map[string]*ownerKeys
}

// NewKeyStore creates a KeyStore. A non-positive ttl uses DefaultKeyTTL.
func NewKeyStore(ttl time.Duration) *KeyStore {
	if ttl <= 0 {
		ttl = DefaultKeyTTL
	}
	return &KeyStore{
		ttl:    ttl,
		now:    time.Now,
		random: rand.Reader,
		keys:   make(map[string]*ownerKeys),
	}
}

// TTL returns the rotation interval.
func (s *KeyStore) TTL() time.Duration {
	return s.ttl
}

// Current returns the owner's current key, rotating it first if it is due.
// ExpiresAt is when the key stops validating.
func (s *KeyStore) Current(ownerID string) (Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[ownerID]
	if !ok || s.now().Sub(k.currentIssued) >= s.ttl {
		next, err := s.generate()
		if err != nil {
			return Key{}, err
		}
		if !ok {
			k = &ownerKeys{}
			s.keys[ownerID] = k
		}
		k.previous, k.previousIssued = k.current, k.currentIssued
		k.current, k.currentIssued = next, s.now()
	}
	return Key{Value: k.current, ExpiresAt: k.currentIssued.Add(2 * s.ttl)}, nil
}

// Validate reports whether key is the owner's current or previous key and
// has not expired.
func (s *KeyStore) Validate(ownerID, key string) bool {
	if key == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[ownerID]
	if !ok {
		return false
	}
	return s.valid(k.current, k.currentIssued, key) || s.valid(k.previous, k.previousIssued, key)
}

// Prune removes owners whose keys have all expired and returns how many.
func (s *KeyStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for ownerID, k := range s.keys {
		if s.now().Sub(k.currentIssued) >= 2*s.ttl {
			delete(s.keys, ownerID)
			removed++
		}
	}
	return removed
}

func (s *KeyStore) valid(stored string, issued time.Time, given string) bool {
	if stored == "" || s.now().Sub(issued) >= 2*s.ttl {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

func (s *KeyStore) generate() (string, error) {
	buf := make([]byte, keyBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("failed to generate access key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
