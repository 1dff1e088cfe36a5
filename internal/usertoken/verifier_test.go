package usertoken

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "https://auth.example.com"
	testAudience = "inkforge-api"
)

type jwksFixture struct {
	key     *rsa.PrivateKey
	keyID   string
	fetches atomic.Int64
	server  *httptest.Server
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	f := &jwksFixture{key: key, keyID: "kid-1"}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.fetches.Add(1)
		payload := map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": f.keyID,
				"n":   base64.RawURLEncoding.EncodeToString(f.key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(f.key.E)).Bytes()),
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) verifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{
		JWKSURL:  f.server.URL,
		Issuer:   testIssuer,
		Audience: testAudience,
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func (f *jwksFixture) sign(t *testing.T, kid string, claims jwt.RegisteredClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims(subject string) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    testIssuer,
		Audience:  jwt.ClaimStrings{testAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

func TestVerifySubject(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.verifier(t)
	token := f.sign(t, f.keyID, validClaims("user-42"))

	subject, err := v.VerifySubject(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if subject != "user-42" {
		t.Fatalf("subject = %q, want user-42", subject)
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.verifier(t)
	claims := validClaims("user-42")
	claims.Issuer = "https://evil.example.com"
	if _, err := v.VerifySubject(f.sign(t, f.keyID, claims)); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.verifier(t)
	claims := validClaims("user-42")
	claims.Audience = jwt.ClaimStrings{"another-api"}
	if _, err := v.VerifySubject(f.sign(t, f.keyID, claims)); err == nil {
		t.Fatal("expected audience mismatch error")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	f := newJWKSFixture(t)
	v, err := NewVerifier(Config{
		JWKSURL:  f.server.URL,
		Issuer:   testIssuer,
		Audience: testAudience,
		Leeway:   time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	claims := validClaims("user-42")
	claims.IssuedAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	if _, err := v.VerifySubject(f.sign(t, f.keyID, claims)); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.verifier(t)
	claims := validClaims("")
	if _, err := v.VerifySubject(f.sign(t, f.keyID, claims)); err == nil {
		t.Fatal("expected missing subject error")
	}
}

func TestVerifyRefreshesOnUnknownKeyID(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.verifier(t)

	// Rotate the key id on the provider side after the initial fetch. The
	// verifier should refetch the key set when it sees the unknown kid.
	f.keyID = "kid-2"
	token := f.sign(t, "kid-2", validClaims("user-42"))

	subject, err := v.VerifySubject(token)
	if err != nil {
		t.Fatalf("verify after rotation: %v", err)
	}
	if subject != "user-42" {
		t.Fatalf("subject = %q, want user-42", subject)
	}
	if got := f.fetches.Load(); got < 2 {
		t.Fatalf("jwks fetches = %d, want refresh after unknown kid", got)
	}
}
