package hostproto

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// SessionStore is the Host Protocol session handshake: a bcrypt-hashed
// token check, grounded on pkg/web/auth.Authenticator's passwordsMatch
// idiom, generalized from a username/password pair to a single bearer
// token since a websocket-exposed engine authenticates the connection
// once rather than per-request.
type SessionStore struct {
	mu         sync.Mutex
	hashCost   int
	tokenHash  []byte
	authorized map[string]bool
}

const defaultSessionHashCost = 10

// NewSessionStore issues a fresh random token, returns it in plaintext
// (for the operator to hand to a host out of band), and stores only its
// bcrypt hash.
func NewSessionStore() (*SessionStore, string, error) {
	token := genToken()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), defaultSessionHashCost)
	if err != nil {
		return nil, "", err
	}
	return &SessionStore{hashCost: defaultSessionHashCost, tokenHash: hash, authorized: map[string]bool{}}, token, nil
}

// Authenticate validates presented against the stored hash. It always
// performs the bcrypt comparison, even for an empty token, so a client
// probing for the presence of auth cannot distinguish "wrong token" from
// "no token" by timing (matches pkg/web/auth.ValidateAuth's constant-time
// intent for a failed lookup).
func (s *SessionStore) Authenticate(connectionID, presented string) bool {
	ok := bcrypt.CompareHashAndPassword(s.tokenHash, []byte(presented)) == nil
	s.mu.Lock()
	s.authorized[connectionID] = ok
	s.mu.Unlock()
	return ok
}

// IsAuthorized reports whether connectionID has already authenticated.
func (s *SessionStore) IsAuthorized(connectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authorized[connectionID]
}

// Revoke drops a connection's authorization, e.g. on disconnect.
func (s *SessionStore) Revoke(connectionID string) {
	s.mu.Lock()
	delete(s.authorized, connectionID)
	s.mu.Unlock()
}

func genToken() string {
	b := make([]byte, 16)
	rand.Read(b) //nolint:errcheck
	return hex.EncodeToString(b)
}
