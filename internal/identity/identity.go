// Package identity extracts the caller's identity claim from inbound
// requests. Two modes exist: verifying a bearer JWT locally, or trusting
// headers stamped by a fronting gateway that already verified the token.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// Mode selects how identity is established.
type Mode string

const (
	// ModeJWT verifies an HS256 bearer token with a shared secret.
	ModeJWT Mode = "jwt"
	// ModeHeader trusts X-User-Id / X-User-Email from a fronting gateway.
	ModeHeader Mode = "header"
)

const (
	headerUserID    = "X-User-Id"
	headerUserEmail = "X-User-Email"
)

// ErrUnauthenticated indicates a missing or invalid identity claim.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

// Claims is the resolved caller identity.
type Claims struct {
	// UserID is the subject claim; opaque and stable.
	UserID string
	// Email is the optional email claim.
	Email string
}

// ParseMode validates a mode string.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeJWT:
		return ModeJWT, nil
	case ModeHeader:
		return ModeHeader, nil
	default:
		return "", fmt.Errorf("identity: unknown auth mode %q", raw)
	}
}

// Extractor resolves claims from requests.
type Extractor struct {
	mode   Mode
	secret []byte
}

// NewExtractor builds an extractor for mode. ModeJWT requires a non-empty
// secret.
func NewExtractor(mode Mode, secret []byte) (*Extractor, error) {
	if mode == ModeJWT && len(secret) == 0 {
		return nil, fmt.Errorf("identity: jwt mode requires a secret")
	}
	return &Extractor{mode: mode, secret: secret}, nil
}

// FromRequest resolves the caller's claims or returns ErrUnauthenticated.
func (e *Extractor) FromRequest(r *http.Request) (Claims, error) {
	switch e.mode {
	case ModeHeader:
		return fromHeaders(r)
	default:
		return e.fromBearer(r)
	}
}

func fromHeaders(r *http.Request) (Claims, error) {
	userID := strings.TrimSpace(r.Header.Get(headerUserID))
	if userID == "" {
		return Claims{}, ErrUnauthenticated
	}
	return Claims{
		UserID: userID,
		Email:  strings.TrimSpace(r.Header.Get(headerUserEmail)),
	}, nil
}

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (e *Extractor) fromBearer(r *http.Request) (Claims, error) {
	raw := bearerToken(r)
	if raw == "" {
		return Claims{}, ErrUnauthenticated
	}
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return e.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Claims{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return Claims{UserID: subject, Email: strings.TrimSpace(claims.Email)}, nil
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
