package gateway

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"LinkHub/logger"
	"LinkHub/service/metrics"
	"LinkHub/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	QuerySessionID  = "sessionId"
	HeaderSessionID = "X-Session-Id"
)

// SessionID reads the affinity key: query parameter first, then header.
func SessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get(QuerySessionID)); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(HeaderSessionID))
}

// Proxy forwards each request to the worker its session is pinned to.
// Websocket upgrades go through the same path.
type Proxy struct {
	table   Table
	proxies map[string]*httputil.ReverseProxy
}

func NewProxy(table Table, workers []string) (*Proxy, error) {
	if len(workers) == 0 {
		return nil, errs.ErrArgs.WrapMsg("gateway needs at least one worker")
	}
	p := &Proxy{table: table, proxies: make(map[string]*httputil.ReverseProxy, len(workers))}
	for _, w := range workers {
		u, err := url.Parse(w)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, errs.ErrArgs.WrapMsg("bad worker url", "worker", w, "err", err)
		}
		p.proxies[w] = newReverseProxy(w, u)
	}
	return p, nil
}

func newReverseProxy(worker string, target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		// 不换 worker 重试，也不删分配：短暂故障不能让会话搬家
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			metrics.GatewayProxyErrors.WithLabelValues(worker).Inc()
			logger.Error("[Gateway] proxy error", zap.String("worker", worker),
				zap.String("session", SessionID(r)), zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		},
	}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := SessionID(r)
	worker, _, err := p.table.Resolve(r.Context(), sessionID)
	if err != nil {
		logger.Error("[Gateway] resolve failed", zap.String("session", sessionID), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	rp, ok := p.proxies[worker]
	if !ok {
		// 共享表里残留了已不在池中的 worker
		logger.Error("[Gateway] unknown worker", zap.String("session", sessionID), zap.String("worker", worker))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	rp.ServeHTTP(w, r)
}

// Engine mounts the gateway's own routes under /_gateway and proxies the rest.
func (p *Proxy) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/_gateway/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/_gateway/metrics", gin.WrapH(metrics.Handler()))
	r.NoRoute(gin.WrapH(p))
	return r
}
