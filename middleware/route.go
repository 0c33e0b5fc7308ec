package middleware

import (
	midsec "LinkHub/middleware/security"

	"github.com/gin-gonic/gin"
)

// RouteOpt 路由选项：Auth 非空时挂载 JWT 校验
type RouteOpt struct {
	Auth *midsec.Options
}

func (o RouteOpt) chain(handler gin.HandlerFunc) []gin.HandlerFunc {
	if o.Auth == nil {
		return []gin.HandlerFunc{handler}
	}
	return []gin.HandlerFunc{midsec.Middleware(o.Auth), handler}
}

// 封装 GET
func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.GET(path, opt.chain(handler)...)
}

// 封装 POST
func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.POST(path, opt.chain(handler)...)
}
