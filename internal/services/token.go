package services

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// tokenBytes gives 256 bits of entropy per signing link.
const tokenBytes = 32

// TokenService mints the single-use, time-limited tokens embedded in
// signing links. Tokens are stored as plaintext: authorization is enforced
// by server-side status checks, not token secrecy depth alone.
type TokenService struct {
	ttl time.Duration
}

func NewTokenService(ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &TokenService{ttl: ttl}
}

// Issue returns a URL-safe opaque token and its fixed expiry horizon. The
// horizon never moves after issuance.
func (s *TokenService) Issue() (string, time.Time, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	return token, time.Now().Add(s.ttl).UTC(), nil
}

// TTL reports the configured signing horizon, used for notification copy.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}
