package security

import (
	"net/http"
	"strings"

	"LinkHub/tools/errs"
	"LinkHub/tools/security"

	"github.com/gin-gonic/gin"
)

// context keys
const (
	CtxTokenKey  = "authorization"     // string
	CtxHashKey   = "authorizationHash" // string
	CtxClaimsKey = "viewerClaims"      // *security.ViewerClaims
)

type Options struct {
	JWT security.Options

	HeaderToken               string // 默认 "X-Auth-Token"
	HeaderHash                string // 默认 "X-Auth-Hash"（可选）
	QueryToken                string // 默认 "token"，浏览器 websocket 握手无法带 header
	EnableAuthorizationBearer bool   // 默认 true
}

func DefaultOptions(secret []byte) *Options {
	return &Options{
		JWT:                       security.DefaultOptions(secret),
		HeaderToken:               "X-Auth-Token",
		HeaderHash:                "X-Auth-Hash",
		QueryToken:                "token",
		EnableAuthorizationBearer: true,
	}
}

// Middleware verifies the viewer token and stores its claims in the gin context.
func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c, opts)
		hash := strings.TrimSpace(c.GetHeader(opts.HeaderHash))

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenInvalid.WithDetail("missing token"))
			return
		}
		claims, err := security.Verify(opts.JWT, token, hash)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenInvalid.WithDetail(err.Error()))
			return
		}

		c.Set(CtxTokenKey, token)
		if hash != "" {
			c.Set(CtxHashKey, hash)
		}
		c.Set(CtxClaimsKey, claims)
		c.Next()
	}
}

// Claims returns the verified claims, or nil when the route is not protected.
func Claims(c *gin.Context) *security.ViewerClaims {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*security.ViewerClaims)
	return claims
}

func extractToken(c *gin.Context, opts *Options) string {
	token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))

	// 兼容 Authorization: Bearer xxx
	if token == "" && opts.EnableAuthorizationBearer {
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}
	}
	if token == "" && opts.QueryToken != "" {
		token = strings.TrimSpace(c.Query(opts.QueryToken))
	}
	return token
}
