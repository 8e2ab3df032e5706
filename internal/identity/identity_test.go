package identity

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func jwtRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/v1/counter", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func newJWTExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := NewExtractor(ModeJWT, testSecret)
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	return e
}

func TestParseMode(t *testing.T) {
	for raw, want := range map[string]Mode{"jwt": ModeJWT, "JWT": ModeJWT, " header ": ModeHeader} {
		mode, err := ParseMode(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if mode != want {
			t.Fatalf("parse %q: expected %s, got %s", raw, want, mode)
		}
	}
	if _, err := ParseMode("oauth"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestNewExtractorJWTRequiresSecret(t *testing.T) {
	if _, err := NewExtractor(ModeJWT, nil); err == nil {
		t.Fatal("expected error for jwt mode without secret")
	}
	if _, err := NewExtractor(ModeHeader, nil); err != nil {
		t.Fatalf("header mode needs no secret: %v", err)
	}
}

func TestJWTValidToken(t *testing.T) {
	e := newJWTExtractor(t)
	token := signToken(t, testSecret, tokenClaims{
		Email: "a@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-a",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	claims, err := e.FromRequest(jwtRequest(token))
	if err != nil {
		t.Fatalf("from request: %v", err)
	}
	if claims.UserID != "user-a" || claims.Email != "a@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestJWTMissingToken(t *testing.T) {
	e := newJWTExtractor(t)
	if _, err := e.FromRequest(jwtRequest("")); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestJWTExpiredToken(t *testing.T) {
	e := newJWTExtractor(t)
	token := signToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   "user-a",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	if _, err := e.FromRequest(jwtRequest(token)); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for expired token, got %v", err)
	}
}

func TestJWTWrongSecret(t *testing.T) {
	e := newJWTExtractor(t)
	token := signToken(t, []byte("other-secret"), jwt.RegisteredClaims{Subject: "user-a"})
	if _, err := e.FromRequest(jwtRequest(token)); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for bad signature, got %v", err)
	}
}

func TestJWTMissingSubject(t *testing.T) {
	e := newJWTExtractor(t)
	token := signToken(t, testSecret, jwt.RegisteredClaims{})
	if _, err := e.FromRequest(jwtRequest(token)); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for missing subject, got %v", err)
	}
}

func TestJWTRejectsUnexpectedAlgorithm(t *testing.T) {
	e := newJWTExtractor(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-a"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := e.FromRequest(jwtRequest(token)); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for alg=none, got %v", err)
	}
}

func TestHeaderMode(t *testing.T) {
	e, err := NewExtractor(ModeHeader, nil)
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	r := httptest.NewRequest(http.MethodGet, "/v1/counter", nil)
	r.Header.Set("X-User-Id", " user-a ")
	r.Header.Set("X-User-Email", "a@example.com")
	claims, err := e.FromRequest(r)
	if err != nil {
		t.Fatalf("from request: %v", err)
	}
	if claims.UserID != "user-a" || claims.Email != "a@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	r = httptest.NewRequest(http.MethodGet, "/v1/counter", nil)
	if _, err := e.FromRequest(r); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated without headers, got %v", err)
	}
}

func TestBearerTokenParsing(t *testing.T) {
	e := newJWTExtractor(t)
	r := httptest.NewRequest(http.MethodGet, "/v1/counter", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if _, err := e.FromRequest(r); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for non-bearer auth, got %v", err)
	}
}
