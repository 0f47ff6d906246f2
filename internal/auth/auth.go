package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired is returned when the session token has expired.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidToken is returned when the token is invalid for any reason.
	ErrInvalidToken = errors.New("invalid token")
)

// User is the identity resolved for a request.
type User struct {
	ID string
}

// Authenticator resolves the identity behind an HTTP request. A nil user
// with a nil error means the request carried no credentials at all.
type Authenticator interface {
	CurrentUser(r *http.Request) (*User, error)
}

// sessionClaims are the JWT claims carried by a session token. The user
// identifier lives in the registered Subject claim.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// JWTAuthenticator validates HMAC-signed session tokens from the
// Authorization header.
type JWTAuthenticator struct {
	secret []byte
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

func (a *JWTAuthenticator) CurrentUser(r *http.Request) (*User, error) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, nil
	}

	token, err := jwt.ParseWithClaims(raw, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &User{ID: claims.Subject}, nil
}

// IssueToken signs a session token for userID, valid for ttl. The session
// frontend uses this when establishing a session; tests use it to mint
// credentials.
func IssueToken(userID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
