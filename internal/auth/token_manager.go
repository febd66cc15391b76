package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// TokenType selects the audience a token is minted for.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

var (
	ErrInvalidTokenType = errors.New("invalid token type")
	ErrInvalidToken     = errors.New("invalid token")
)

// Claims are the verified contents of a token.
type Claims struct {
	TokenID   string
	UserID    string
	Role      Role
	SessionID string
	VendorID  *string
	TokenType TokenType
	ExpiresAt time.Time
}

// Identity is the request principal described by access claims.
func (c Claims) Identity() Identity {
	return Identity{
		UserID:    c.UserID,
		Role:      c.Role,
		SessionID: c.SessionID,
		VendorID:  c.VendorID,
	}
}

type sellerClaims struct {
	Role      Role   `json:"role"`
	SessionID string `json:"sid"`
	VendorID  string `json:"vnd,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is what a successful login or refresh hands back.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenManager mints HS256 tokens whose audience encodes the token type.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    map[TokenType]time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

func NewTokenManager(secret, issuer string, accessTokenTTL, refreshTTL time.Duration) (*TokenManager, error) {
	switch {
	case secret == "":
		return nil, errors.New("token secret must not be empty")
	case issuer == "":
		return nil, errors.New("token issuer must not be empty")
	case accessTokenTTL <= 0 || refreshTTL <= 0:
		return nil, errors.New("token ttl values must be positive")
	}

	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl: map[TokenType]time.Duration{
			TokenTypeAccess:  accessTokenTTL,
			TokenTypeRefresh: refreshTTL,
		},
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (m *TokenManager) audience(tokenType TokenType) string {
	return m.issuer + "/" + string(tokenType)
}

// IssueTokenPair mints both tokens of a session with a shared issue time.
func (m *TokenManager) IssueTokenPair(user User, sessionID string) (TokenPair, error) {
	issuedAt := m.now()

	var pair TokenPair
	for _, tokenType := range []TokenType{TokenTypeAccess, TokenTypeRefresh} {
		expiresAt := issuedAt.Add(m.ttl[tokenType])
		signed, err := m.sign(user, sessionID, tokenType, issuedAt, expiresAt)
		if err != nil {
			return TokenPair{}, err
		}
		if tokenType == TokenTypeAccess {
			pair.AccessToken, pair.AccessExpiresAt = signed, expiresAt
		} else {
			pair.RefreshToken, pair.RefreshExpiresAt = signed, expiresAt
		}
	}
	return pair, nil
}

func (m *TokenManager) sign(user User, sessionID string, tokenType TokenType, issuedAt, expiresAt time.Time) (string, error) {
	claims := sellerClaims{
		Role:      user.Role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{m.audience(tokenType)},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if user.VendorID != nil {
		claims.VendorID = *user.VendorID
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ParseAndValidate verifies signature, issuer and expiry, then checks that the
// token was minted for expectedType.
func (m *TokenManager) ParseAndValidate(rawToken string, expectedType TokenType) (Claims, error) {
	var claims sellerClaims
	token, err := m.parser.ParseWithClaims(rawToken, &claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if !claims.VerifyIssuer(m.issuer, true) || claims.ExpiresAt == nil || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	if !isKnownRole(claims.Role) {
		return Claims{}, ErrInvalidToken
	}

	if !claims.VerifyAudience(m.audience(expectedType), true) {
		for tokenType := range m.ttl {
			if claims.VerifyAudience(m.audience(tokenType), true) {
				return Claims{}, ErrInvalidTokenType
			}
		}
		return Claims{}, ErrInvalidToken
	}

	parsed := Claims{
		TokenID:   claims.ID,
		UserID:    claims.Subject,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		TokenType: expectedType,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.VendorID != "" {
		vendorID := claims.VendorID
		parsed.VendorID = &vendorID
	}
	return parsed, nil
}

func isKnownRole(role Role) bool {
	for _, known := range Roles() {
		if role == known {
			return true
		}
	}
	return false
}

// HashToken is the form refresh tokens are stored in.
func HashToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}
