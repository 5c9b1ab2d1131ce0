package auth

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var subjectClaimKeys = []string{"userId", "sub", "user_id"}

// subjectFromToken reads the user id from the token's claims segment. The
// header and signature are not looked at, so tokens with an unknown or
// missing alg still resolve. Only the first matching key is considered. The
// service also nests its session in a JSON "payload" claim, which is
// consulted last.
func subjectFromToken(accessToken string) (int64, bool) {
	parts := strings.Split(accessToken, ".")
	if len(parts) != 3 {
		return 0, false
	}
	raw, err := jwt.NewParser(jwt.WithPaddingAllowed()).DecodeSegment(parts[1])
	if err != nil {
		return 0, false
	}
	claims, ok := decodeClaims(raw)
	if !ok {
		return 0, false
	}
	if id, ok := subjectFromClaims(claims); ok {
		return id, true
	}
	nested, ok := claims["payload"].(string)
	if !ok {
		return 0, false
	}
	inner, ok := decodeClaims([]byte(nested))
	if !ok {
		return 0, false
	}
	return subjectFromClaims(inner)
}

func decodeClaims(raw []byte) (jwt.MapClaims, bool) {
	claims := jwt.MapClaims{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&claims); err != nil {
		return nil, false
	}
	return claims, true
}

func subjectFromClaims(claims map[string]any) (int64, bool) {
	for _, key := range subjectClaimKeys {
		value, present := claims[key]
		if !present || value == nil {
			continue
		}
		return claimInt(value)
	}
	return 0, false
}

func claimInt(value any) (int64, bool) {
	switch v := value.(type) {
	case json.Number:
		id, err := v.Int64()
		return id, err == nil
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return id, err == nil
	default:
		return 0, false
	}
}
