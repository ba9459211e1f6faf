package devserver

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcleod/hrclient/internal/uuid"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

var (
	errWrongTokenType = errors.New("wrong token type")
	errTokenRevoked   = errors.New("token has been revoked")
)

type tokenClaims struct {
	jwt.RegisteredClaims
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	// Generation ties an access token to the revocation generation it was
	// issued under; RevokeAccess bumps the server's generation.
	Generation uint64 `json:"gen,omitempty"`
}

func (c *tokenClaims) userID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

func (s *Server) issue(acct *account, typ string) (string, error) {
	now := time.Now()
	ttl := s.accessTTL
	if typ == tokenRefresh {
		ttl = s.refreshTTL
	}
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New(),
			Subject:   strconv.FormatInt(acct.id, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type:     typ,
		Username: acct.username,
		Role:     acct.role,
	}
	if typ == tokenAccess {
		claims.Generation = s.accessGeneration()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", typ, err)
	}
	return signed, nil
}

// verify parses raw and checks its signature, expiry, type and revocation.
func (s *Server) verify(raw, typ string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, errWrongTokenType
	}
	if typ == tokenAccess && s.isRevoked(claims) {
		return nil, errTokenRevoked
	}
	return claims, nil
}

func (s *Server) accessGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Server) isRevoked(c *tokenClaims) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Generation != s.generation {
		return true
	}
	_, ok := s.revoked[c.ID]
	return ok
}

func (s *Server) revoke(c *tokenClaims) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	var exp time.Time
	if c.ExpiresAt != nil {
		exp = c.ExpiresAt.Time
	}
	s.revoked[c.ID] = exp
}
