package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TokenPair is the response returned after successful sign-up, sign-in or
// refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Claims is the access-token payload: the user id rides in Subject, email and
// role as private claims.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

// Fallback lifetimes when the configuration leaves them unset.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Tokens issues and verifies the credential pair: short-lived HS256 access
// tokens plus opaque refresh tokens whose lifetime bounds the stored session.
type Tokens struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// NewTokens fills unset lifetimes with the defaults.
func NewTokens(secret string, accessTTL, refreshTTL time.Duration) Tokens {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return Tokens{Secret: secret, AccessTTL: accessTTL, RefreshTTL: refreshTTL}
}

// SignAccess issues a signed access token for the session user.
func (t Tokens) SignAccess(u SessionUser) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.AccessTTL)),
		},
		Email: u.Email,
		Role:  u.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccess verifies a presented access token and returns its claims.
func (t Tokens) ParseAccess(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return []byte(t.Secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// NewRefresh mints an opaque refresh token. Its only meaning is the session
// row it is stored in.
func (t Tokens) NewRefresh() string {
	return uuid.New().String()
}

// RefreshExpiry returns the expiry instant for a refresh token minted now.
func (t Tokens) RefreshExpiry() time.Time {
	return time.Now().Add(t.RefreshTTL).UTC()
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
