package chat

import (
	"errors"
	"sort"
	"testing"

	"LinkHub/service/fanout"
	"LinkHub/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	event string
	calls int
	err   error
}

func (h *stubHandler) Event() string { return h.event }
func (h *stubHandler) Handle(*ChatContext, *fanout.Frame, *WsConn) error {
	h.calls++
	return h.err
}

func TestDispatcher_Routes(t *testing.T) {
	d := NewDispatcher()
	a := &stubHandler{event: "a"}
	b := &stubHandler{event: "b", err: errors.New("boom")}
	d.Register(a)
	d.Register(b)

	require.NoError(t, d.Dispatch(&ChatContext{}, &fanout.Frame{Event: "a"}, &WsConn{}))
	assert.EqualError(t, d.Dispatch(&ChatContext{}, &fanout.Frame{Event: "b"}, &WsConn{}), "boom")
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)

	events := d.Events()
	sort.Strings(events)
	assert.Equal(t, []string{"a", "b"}, events)
}

func TestDispatcher_UnknownEvent(t *testing.T) {
	d := NewDispatcher()
	err := d.Dispatch(&ChatContext{}, &fanout.Frame{Event: "nope"}, &WsConn{})
	assert.True(t, errors.Is(err, errs.ErrArgs))
	assert.Nil(t, d.GetHandler("nope"))
}
