package fanout

import (
	"encoding/json"

	"LinkHub/tools/errs"
)

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals an outbound event.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.WrapMsg(err, "encode payload", "event", event)
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// ParseFrame decodes an inbound frame. Frames without an event name are rejected.
func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.ErrArgs.WrapMsg("unmarshal frame failed", "err", err)
	}
	if f.Event == "" {
		return nil, errs.ErrArgs.WrapMsg("frame without event")
	}
	return &f, nil
}
