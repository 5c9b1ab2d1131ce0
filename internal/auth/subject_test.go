package auth

import (
	"encoding/base64"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestSubjectFromToken(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   int64
		ok     bool
	}{
		{name: "userId number", claims: jwt.MapClaims{"userId": 12}, want: 12, ok: true},
		{name: "sub string", claims: jwt.MapClaims{"sub": "34"}, want: 34, ok: true},
		{name: "user_id", claims: jwt.MapClaims{"user_id": 56}, want: 56, ok: true},
		{name: "first key wins", claims: jwt.MapClaims{"userId": 1, "sub": "2"}, want: 1, ok: true},
		{name: "nested payload", claims: jwt.MapClaims{"payload": `{"userId":78,"terminal":0}`}, want: 78, ok: true},
		{name: "non numeric sub", claims: jwt.MapClaims{"sub": "bot"}, ok: false},
		{name: "no subject", claims: jwt.MapClaims{"exp": 1}, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := subjectFromToken(signedToken(t, tt.claims))
			if ok != tt.ok || got != tt.want {
				t.Fatalf("subjectFromToken() = %d, %v; want %d, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSubjectFromTokenRejectsGarbage(t *testing.T) {
	if _, ok := subjectFromToken("not-a-jwt"); ok {
		t.Fatalf("garbage token produced a subject")
	}
}

func unsignedToken(header, payload string) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(header)) + "." + enc.EncodeToString([]byte(payload)) + ".c2ln"
}

func TestSubjectFromTokenIgnoresHeader(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  int64
	}{
		{name: "no alg", token: unsignedToken(`{"typ":"JWT"}`, `{"userId":42}`), want: 42},
		{name: "unregistered alg", token: unsignedToken(`{"alg":"SM3"}`, `{"userId":42}`), want: 42},
		{name: "header not json", token: unsignedToken(`???`, `{"sub":"43"}`), want: 43},
		{name: "padded payload", token: "e30." + base64.URLEncoding.EncodeToString([]byte(`{"userId":77}`)) + ".x", want: 77},
		{name: "large id keeps precision", token: unsignedToken(`{}`, `{"userId":9007199254740993}`), want: 9007199254740993},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := subjectFromToken(tt.token)
			if !ok || got != tt.want {
				t.Fatalf("subjectFromToken() = %d, %v; want %d, true", got, ok, tt.want)
			}
		})
	}
}
