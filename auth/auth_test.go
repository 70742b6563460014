package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"phalanx/config"
)

func TestFromConfigDisabled(t *testing.T) {
	v, err := FromConfig(config.AuthConfig{Enabled: false})
	if err != nil || v != nil {
		t.Fatalf("expected a nil validator and no error when auth is disabled, got %v, %v", v, err)
	}
}

func TestFromConfigEnabledWithoutURL(t *testing.T) {
	_, err := FromConfig(config.AuthConfig{Enabled: true})
	if err == nil {
		t.Fatalf("expected an error when auth is enabled without a jwks url")
	}
}

func TestSubjectFromPrefersSub(t *testing.T) {
	claims := jwt.MapClaims{"sub": "user-1", "id": "other"}
	if got := subjectFrom(claims); got != "user-1" {
		t.Errorf("subjectFrom = %q, want user-1", got)
	}
}

func TestNameFromFallsBackWhenEmpty(t *testing.T) {
	if got := nameFrom(jwt.MapClaims{}); got != "player" {
		t.Errorf("nameFrom = %q, want player", got)
	}
}

func TestJWKSValidatorValidatesSignedToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	jwks := map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": "test-key",
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(bigEndianExponent(key.PublicKey.E)),
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	defer srv.Close()

	validator, err := NewJWKSValidator(srv.URL, "phalanx-test")
	if err != nil {
		t.Fatalf("unexpected error building validator: %v", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "player-42",
		"iss": "phalanx-test",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	id, err := validator.Validate(nil, signed)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if id.PlayerID != "player-42" {
		t.Errorf("PlayerID = %q, want player-42", id.PlayerID)
	}
}

func TestJWKSValidatorRejectsWrongIssuer(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	jwks := map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": "test-key",
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(bigEndianExponent(key.PublicKey.E)),
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	defer srv.Close()

	validator, err := NewJWKSValidator(srv.URL, "expected-issuer")
	if err != nil {
		t.Fatalf("unexpected error building validator: %v", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "player-42",
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = "test-key"
	signed, _ := token.SignedString(key)

	if _, err := validator.Validate(nil, signed); err == nil {
		t.Fatalf("expected validation to fail for a mismatched issuer")
	}
}

func bigEndianExponent(e int) []byte {
	b := []byte{byte(e >> 16), byte(e >> 8), byte(e)}
	i := 0
	for i < len(b)-1 && b[i] == 0 {
		i++
	}
	return b[i:]
}
