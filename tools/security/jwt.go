package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Options 控制签名与 TTL 等参数。
type Options struct {
	Secret []byte        // HMAC 密钥
	Alg    string        // HS256/HS384/HS512（默认 HS256）
	TTL    time.Duration // 令牌有效期（默认 2h）
}

// ViewerClaims is what a verified viewer token grants: the viewer id and the
// linked sessions it may read. An empty Sessions list grants every session.
type ViewerClaims struct {
	Sessions []string `json:"sessions,omitempty"`
	jwtlib.RegisteredClaims
}

func (c *ViewerClaims) AllowsSession(sessionID string) bool {
	if c == nil {
		return false
	}
	if len(c.Sessions) == 0 {
		return true
	}
	for _, s := range c.Sessions {
		if s == sessionID {
			return true
		}
	}
	return false
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: 2 * time.Hour}
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Generate signs a viewer token. The hash is what callers may persist instead of the token.
func Generate(opts Options, viewerID string, sessions []string) (token string, tokenHash string, expireAt time.Time, err error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", "", time.Time{}, err
	}
	if len(opts.Secret) == 0 {
		return "", "", time.Time{}, errors.New("jwt secret missing")
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	now := time.Now()
	exp := now.Add(opts.TTL)

	claims := ViewerClaims{
		Sessions: sessions,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   viewerID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(exp),
		},
	}

	signed, err := jwtlib.NewWithClaims(method, claims).SignedString(opts.Secret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, HashToken(signed), exp, nil
}

// Verify parses and validates token. expectedHash is optional.
func Verify(opts Options, token string, expectedHash string) (*ViewerClaims, error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return nil, err
	}
	claims := &ViewerClaims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (interface{}, error) {
		// 仅允许 HMAC 家族
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return opts.Secret, nil
	}, jwtlib.WithValidMethods([]string{method.Alg()}))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if expectedHash != "" && HashToken(token) != expectedHash {
		return nil, errors.New("access token hash mismatch")
	}
	return claims, nil
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported alg: %s (use HS256/HS384/HS512)", alg)
	}
}
