package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

type backend struct {
	name string
	srv  *httptest.Server
	hits atomic.Int64
}

// newBackend answers with its name and echoes websocket frames prefixed by it.
func newBackend(t *testing.T, name string) *backend {
	t.Helper()
	b := &backend{name: name}
	up := websocket.Upgrader{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		if websocket.IsWebSocketUpgrade(r) {
			ws, err := up.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer ws.Close()
			for {
				mt, data, err := ws.ReadMessage()
				if err != nil {
					return
				}
				if err := ws.WriteMessage(mt, append([]byte(name+":"), data...)); err != nil {
					return
				}
			}
		}
		_, _ = io.WriteString(w, name+" "+r.URL.Path)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func newGateway(t *testing.T, backends ...*backend) (*httptest.Server, *MemoryTable) {
	t.Helper()
	workers := make([]string, 0, len(backends))
	for _, b := range backends {
		workers = append(workers, b.srv.URL)
	}
	tab, err := NewMemoryTable(workers)
	require.NoError(t, err)
	p, err := NewProxy(tab, workers)
	require.NoError(t, err)
	gw := httptest.NewServer(p.Engine())
	t.Cleanup(gw.Close)
	return gw, tab
}

func get(t *testing.T, url string, header map[string]string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestProxy_RoutesBySession(t *testing.T) {
	b0, b1 := newBackend(t, "w0"), newBackend(t, "w1")
	gw, _ := newGateway(t, b0, b1)

	_, body := get(t, gw.URL+"/api/chats/a?sessionId=a", nil)
	assert.Equal(t, "w0 /api/chats/a", body)
	_, body = get(t, gw.URL+"/api/chats/b", map[string]string{HeaderSessionID: "b"})
	assert.Equal(t, "w1 /api/chats/b", body)

	// query 优先于 header
	_, body = get(t, gw.URL+"/x?sessionId=b", map[string]string{HeaderSessionID: "a"})
	assert.Equal(t, "w1 /x", body)

	for i := 0; i < 3; i++ {
		_, body = get(t, gw.URL+"/api/messages/c?sessionId=a", nil)
		assert.Equal(t, "w0 /api/messages/c", body)
	}
}

func TestProxy_NoSessionGoesToFirstWorker(t *testing.T) {
	b0, b1 := newBackend(t, "w0"), newBackend(t, "w1")
	gw, tab := newGateway(t, b0, b1)

	code, body := get(t, gw.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "w0 /healthz", body)
	assert.Zero(t, b1.hits.Load())
	assert.Zero(t, tab.Len())
}

func TestProxy_DeadWorkerKeepsAssignment(t *testing.T) {
	b0, b1 := newBackend(t, "w0"), newBackend(t, "w1")
	gw, tab := newGateway(t, b0, b1)

	_, body := get(t, gw.URL+"/?sessionId=first", nil)
	assert.Equal(t, "w0 /", body)
	_, body = get(t, gw.URL+"/?sessionId=foo", nil)
	assert.Equal(t, "w1 /", body)

	b1.srv.Close()
	before := b0.hits.Load()
	for i := 0; i < 2; i++ {
		code, _ := get(t, gw.URL+"/?sessionId=foo", nil)
		assert.Equal(t, http.StatusBadGateway, code)
	}
	assert.Equal(t, before, b0.hits.Load(), "must not fail over to another worker")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	w, isNew, err := tab.Resolve(ctx, "foo")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, b1.srv.URL, w)
}

func TestProxy_WebsocketUpgrade(t *testing.T) {
	b0, b1 := newBackend(t, "w0"), newBackend(t, "w1")
	gw, _ := newGateway(t, b0, b1)
	wsURL := "ws" + strings.TrimPrefix(gw.URL, "http")

	// 先用普通请求占用 w0，再让 ws 会话落在 w1
	_, _ = get(t, gw.URL+"/?sessionId=plain", nil)

	ws, resp, err := websocket.DefaultDialer.Dial(wsURL+"/ws?sessionId=live", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("ping")))
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "w1:ping", string(data))

	// 同一会话的普通请求与 ws 走同一个 worker
	_, body := get(t, gw.URL+"/api/chats/live?sessionId=live", nil)
	assert.Equal(t, "w1 /api/chats/live", body)
}

func TestProxy_OwnRoutes(t *testing.T) {
	b0 := newBackend(t, "w0")
	gw, _ := newGateway(t, b0)

	code, body := get(t, gw.URL+"/_gateway/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)
	code, _ = get(t, gw.URL+"/_gateway/metrics", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Zero(t, b0.hits.Load())
}

func TestNewProxy_BadWorker(t *testing.T) {
	tab, _ := NewMemoryTable([]string{"::bad"})
	_, err := NewProxy(tab, []string{"::bad"})
	assert.Error(t, err)
}

func TestSessionID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?sessionId=%20q%20", nil)
	r.Header.Set(HeaderSessionID, "h")
	assert.Equal(t, "q", SessionID(r))
	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set(HeaderSessionID, "h")
	assert.Equal(t, "h", SessionID(r))
}
