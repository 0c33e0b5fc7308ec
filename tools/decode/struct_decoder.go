package decode

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Options 用于定制 Decode 行为。
type Options struct {
	// 宽松解码（默认 true）：例如 "123" -> int、1.0 -> int64
	WeaklyTypedInput bool
}

func DefaultOptions() Options {
	return Options{
		WeaklyTypedInput: true,
	}
}

// Decode maps a loosely typed event payload (usually the result of
// json.Unmarshal into any) onto T using its `json` tags.
func Decode[T any](in any, opts ...Options) (*T, error) {
	if in == nil {
		return nil, fmt.Errorf("payload is nil")
	}

	cfg := DefaultOptions()
	if len(opts) > 0 {
		cfg = opts[0]
	}

	var out T
	decCfg := &mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			floatToIntHook(),
			jsonRawStringToMapHook(),
		),
	}

	dec, err := mapstructure.NewDecoder(decCfg)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}

// DecodeJSON unmarshals raw JSON loosely and then runs Decode on it.
func DecodeJSON[T any](raw []byte, opts ...Options) (*T, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}
	var m any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return Decode[T](m, opts...)
}

// String reads a payload that is either a bare JSON string or an object
// carrying the value under key, e.g. "abc" or {"sessionId":"abc"}.
func String(raw []byte, key string) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("payload is empty")
	}
	var m any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", fmt.Errorf("unmarshal payload: %w", err)
	}
	switch t := m.(type) {
	case string:
		return t, nil
	case map[string]any:
		v, ok := t[key]
		if !ok || v == nil {
			return "", fmt.Errorf("missing field %q", key)
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("field %q not string (got %T)", key, v)
		}
		return s, nil
	default:
		return "", fmt.Errorf("payload type %T not string", m)
	}
}

// -----------------------------
// Decode Hooks
// -----------------------------

// floatToIntHook：float64 -> int / int32 / int64
func floatToIntHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 {
			return data, nil
		}
		switch to {
		case reflect.Int:
			return int(data.(float64)), nil
		case reflect.Int32:
			return int32(data.(float64)), nil
		case reflect.Int64:
			return int64(data.(float64)), nil
		}
		return data, nil
	}
}

// jsonRawStringToMapHook：把嵌套的 JSON 字符串转为 map[string]any（目标为 map 或 struct）
func jsonRawStringToMapHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.String || (to != reflect.Map && to != reflect.Struct) {
			return data, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(data.(string)), &m); err == nil {
			return m, nil
		}
		return data, nil
	}
}
