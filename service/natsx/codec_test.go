package natsx

import (
	"testing"

	"LinkHub/module/remote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent([]byte(`{"type":"auth_failure","reason":"expired"}`))
	require.NoError(t, err)
	assert.Equal(t, remote.EventAuthFailure, ev.Kind)
	assert.Equal(t, "expired", ev.Reason)

	ev, err = decodeEvent([]byte(`{"type":"ACK","ack":{"msgId":"m","chatId":"c","ack":3}}`))
	require.NoError(t, err)
	assert.Equal(t, 3, ev.Ack.Ack)

	for _, raw := range []string{`{"type":"bogus"}`, `{"type":"message"}`, `{"type":"ack"}`, `not json`} {
		_, err := decodeEvent([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestEncodeEventUsesKindNames(t *testing.T) {
	for kind := range map[remote.EventKind]bool{remote.EventQR: true, remote.EventReady: true,
		remote.EventAuthFailure: true, remote.EventDisconnected: true} {
		raw, err := encodeEvent(remote.Event{Kind: kind})
		require.NoError(t, err)
		ev, err := decodeEvent(raw)
		require.NoError(t, err)
		assert.Equal(t, kind, ev.Kind)
	}
}

func TestDecodeReply(t *testing.T) {
	var out []string
	require.NoError(t, decodeReply("s", []byte(`{"ok":true,"data":["a"]}`), &out))
	assert.Equal(t, []string{"a"}, out)
	require.NoError(t, decodeReply("s", []byte(`{"ok":true}`), &out))
	assert.Error(t, decodeReply("s", []byte(`{"ok":true,"data":{"x":1}}`), &out))
	assert.Error(t, decodeReply("s", []byte(`{"ok":false,"error":"nope"}`), nil))
	assert.Error(t, decodeReply("s", []byte(`<html>`), nil))
}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "a_b_c_d", subjectToken("a.b*c>d"))
	assert.Equal(t, "user_1", subjectToken("user 1"))
	assert.Equal(t, "plain-id", subjectToken("plain-id"))
}
